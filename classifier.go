package request

import (
	"context"
	"errors"
)

// ActionKind is the side effect a failure calls for.
type ActionKind int

const (
	ActionSilent ActionKind = iota
	ActionNotify
	ActionNotifyAndRedirect
)

func (k ActionKind) String() string {
	switch k {
	case ActionSilent:
		return "silent"
	case ActionNotify:
		return "notify"
	case ActionNotifyAndRedirect:
		return "notify_redirect"
	default:
		return "unknown"
	}
}

// Action is the classified outcome of a failure. Classification only
// describes the side effect; the Client carries it out.
type Action struct {
	Kind    ActionKind
	Message string
	Path    string
}

// Rule maps one business code to an action. An empty Message means the server
// supplied message is used; an empty Path redirects to the client's login path.
type Rule struct {
	Kind    ActionKind
	Message string
	Path    string
}

const (
	// DefaultFallbackMessage is shown for unknown codes without a server message.
	DefaultFallbackMessage = "request failed"
	// TransportErrorMessage is shown for network and undecodable responses.
	TransportErrorMessage = "server error"
	// EmptyExportMessage is shown when a download returns no bytes.
	EmptyExportMessage = "exported file is empty"
	// DefaultLoginPath is the application's login entry point.
	DefaultLoginPath = "/login"
)

// Classifier maps business codes and pipeline errors to actions.
type Classifier struct {
	rules    map[int]Rule
	fallback string
}

// NewClassifier creates a classifier from explicit rules. Unknown codes notify
// with the server message, or fallback when the server sent none.
func NewClassifier(rules map[int]Rule, fallback string) *Classifier {
	copied := make(map[int]Rule, len(rules))
	for code, rule := range rules {
		copied[code] = rule
	}
	if fallback == "" {
		fallback = DefaultFallbackMessage
	}
	return &Classifier{rules: copied, fallback: fallback}
}

// DefaultClassifier returns the rules used by the back office.
func DefaultClassifier() *Classifier {
	return NewClassifier(map[int]Rule{
		CodeInvalidParams: {Kind: ActionNotify},
		CodeUnauthorized:  {Kind: ActionNotifyAndRedirect},
		CodeNotFound:      {Kind: ActionNotify},
		CodeServerError:   {Kind: ActionNotify},
	}, DefaultFallbackMessage)
}

// Classify maps a business code and server message to an action.
func (c *Classifier) Classify(code int, message string) Action {
	rule, ok := c.rules[code]
	if !ok {
		return Action{Kind: ActionNotify, Message: c.message("", message)}
	}
	action := Action{Kind: rule.Kind, Path: rule.Path}
	if rule.Kind != ActionSilent {
		action.Message = c.message(rule.Message, message)
	}
	return action
}

// ClassifyError maps any error returned by Client.Do to an action.
func (c *Classifier) ClassifyError(err error) Action {
	if err == nil || IsDuplicateCancelled(err) {
		return Action{Kind: ActionSilent}
	}
	if errors.Is(err, context.Canceled) {
		return Action{Kind: ActionSilent}
	}

	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		return Action{Kind: ActionNotify, Message: TransportErrorMessage}
	}

	switch clientErr.Type {
	case ErrorTypeBusiness, ErrorTypeAuthExpired:
		return c.Classify(clientErr.Code, clientErr.Message)
	case ErrorTypeEmptyExport:
		return Action{Kind: ActionNotify, Message: EmptyExportMessage}
	case ErrorTypeRefreshFailed:
		return Action{Kind: ActionSilent}
	case ErrorTypeTransport:
		return Action{Kind: ActionNotify, Message: TransportErrorMessage}
	default:
		return Action{Kind: ActionNotify, Message: c.message("", clientErr.Message)}
	}
}

func (c *Classifier) message(override, server string) string {
	if override != "" {
		return override
	}
	if server != "" {
		return server
	}
	return c.fallback
}
