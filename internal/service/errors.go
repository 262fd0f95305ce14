package service

import "errors"

var (
	// ErrUnknownService is returned for a service name not present in the
	// configuration.
	ErrUnknownService = errors.New("unknown service")
	// ErrUnknownCommand is returned when a command id (or, in any-command
	// mode, a sub-service name) matches nothing.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrCommandsDisabled is returned when a service does not allow ad-hoc
	// command execution.
	ErrCommandsDisabled = errors.New("commands are disabled for this service")
)
