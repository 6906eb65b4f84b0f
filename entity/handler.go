package entity

// CommandHandler bridges an entity to the thing it controls.
//
// HandleCommand receives a payload that has already been decoded and
// validated for the entity type. CurrentState must answer quickly: it is
// called from the poll loop and must not block on I/O.
type CommandHandler interface {
	HandleCommand(payload string) error
	CurrentState() (string, error)
}

// SelectHandler is a CommandHandler that also declares the options a
// Select offers.
type SelectHandler interface {
	CommandHandler
	Options() []string
}

// LightHandler is a CommandHandler for JSON schema lights.
type LightHandler interface {
	CommandHandler
	SupportedColorModes() []string
	// Effects may return nil when the light has none.
	Effects() []string
}

// HandlerFuncs adapts two plain functions to a CommandHandler.
type HandlerFuncs struct {
	Command func(payload string) error
	State   func() string
}

func (h HandlerFuncs) HandleCommand(payload string) error {
	if h.Command == nil {
		return nil
	}
	return h.Command(payload)
}

func (h HandlerFuncs) CurrentState() (string, error) {
	if h.State == nil {
		return "", nil
	}
	return h.State(), nil
}
