package acp

import (
	"context"
	"errors"

	"github.com/coder/acp-go-sdk"
)

// ErrTerminalUnsupported is returned for every terminal request. The client
// does not advertise terminal support, so agents run commands themselves.
var ErrTerminalUnsupported = errors.New("terminals are not supported by this client")

// noTerminals answers the terminal half of acp.Client.
type noTerminals struct{}

func (noTerminals) CreateTerminal(context.Context, acp.CreateTerminalRequest) (acp.CreateTerminalResponse, error) {
	return acp.CreateTerminalResponse{}, ErrTerminalUnsupported
}

func (noTerminals) TerminalOutput(context.Context, acp.TerminalOutputRequest) (acp.TerminalOutputResponse, error) {
	return acp.TerminalOutputResponse{}, ErrTerminalUnsupported
}

func (noTerminals) ReleaseTerminal(context.Context, acp.ReleaseTerminalRequest) (acp.ReleaseTerminalResponse, error) {
	return acp.ReleaseTerminalResponse{}, nil
}

func (noTerminals) WaitForTerminalExit(context.Context, acp.WaitForTerminalExitRequest) (acp.WaitForTerminalExitResponse, error) {
	return acp.WaitForTerminalExitResponse{}, ErrTerminalUnsupported
}

func (noTerminals) KillTerminalCommand(context.Context, acp.KillTerminalCommandRequest) (acp.KillTerminalCommandResponse, error) {
	return acp.KillTerminalCommandResponse{}, nil
}
