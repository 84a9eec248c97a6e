package dispatcher

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// toolVersion is reported as this server's MCP implementation version.
const toolVersion = "0.1.0"

// Dispatcher owns the MCP server and the ServerState every handler reads
// and mutates. It is the single place the tool surface is wired to the
// pipelines built in cmd/voxmcp.
type Dispatcher struct {
	State *ServerState
	mcp   *mcp.Server
}

// New builds a Dispatcher and registers the full tool surface against
// it. state must already have its pipelines constructed.
func New(state *ServerState) *Dispatcher {
	d := &Dispatcher{
		State: state,
		mcp:   mcp.NewServer(&mcp.Implementation{Name: "voxmcp", Version: toolVersion}, nil),
	}

	mcp.AddTool(d.mcp, &mcp.Tool{
		Name:        "speak",
		Description: "Speak text aloud through this process's assigned voice.",
	}, d.handleSpeak)

	mcp.AddTool(d.mcp, &mcp.Tool{
		Name:        "listen",
		Description: "Listen on the shared microphone for one utterance and transcribe it.",
	}, d.handleListen)

	mcp.AddTool(d.mcp, &mcp.Tool{
		Name:        "speak_then_listen",
		Description: "Speak a prompt, then listen for a reply in one call.",
	}, d.handleSpeakThenListen)

	mcp.AddTool(d.mcp, &mcp.Tool{
		Name:        "mute",
		Description: "Silence speak; while muted, listen fails fast with a muted error.",
	}, d.handleMute)

	mcp.AddTool(d.mcp, &mcp.Tool{
		Name:        "unmute",
		Description: "Re-enable speak after mute.",
	}, d.handleUnmute)

	mcp.AddTool(d.mcp, &mcp.Tool{
		Name:        "stop",
		Description: "Stop current playback, drain the speak queue, and cancel an in-flight listen.",
	}, d.handleStop)

	mcp.AddTool(d.mcp, &mcp.Tool{
		Name:        "set_voice",
		Description: "Bind an agent name to a specific catalogue voice id.",
	}, d.handleSetVoice)

	mcp.AddTool(d.mcp, &mcp.Tool{
		Name:        "get_voice_registry",
		Description: "Report the current agent-name to voice-id bindings and the unassigned pool.",
	}, d.handleGetVoiceRegistry)

	mcp.AddTool(d.mcp, &mcp.Tool{
		Name:        "list_voices",
		Description: "List every voice in the catalogue.",
	}, d.handleListVoices)

	mcp.AddTool(d.mcp, &mcp.Tool{
		Name:        "status",
		Description: "Report engine readiness, mute state, queue depth, and session identity.",
	}, d.handleStatus)

	mcp.AddTool(d.mcp, &mcp.Tool{
		Name:        "wake_enable",
		Description: "Start the always-on wake-word listener.",
	}, d.handleWakeEnable)

	mcp.AddTool(d.mcp, &mcp.Tool{
		Name:        "wake_disable",
		Description: "Stop the always-on wake-word listener.",
	}, d.handleWakeDisable)

	return d
}

// Run serves tool calls over stdio until ctx is cancelled or the transport
// closes (stdin EOF from the parent dropping the pipe).
func (d *Dispatcher) Run(ctx context.Context) error {
	return d.mcp.Run(ctx, &mcp.StdioTransport{})
}
