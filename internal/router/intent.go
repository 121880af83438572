package router

import "strings"

// ticketKeywords are the phrases that signal a support request, in the
// deployment's two user languages. Matching is a case-insensitive
// substring check; the first hit short-circuits.
var ticketKeywords = []string{
	"problema", "error", "falla", "ticket", "ayuda", "soporte", "no funciona",
	"issue", "bug", "help", "support", "not working", "broken", "doesn't work",
}

// DetectTicketIntent reports whether the message looks like a support
// request.
func DetectTicketIntent(message string) bool {
	lower := strings.ToLower(message)
	for _, keyword := range ticketKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// greetings considered an opening in the INITIAL state.
var greetings = map[string]bool{
	"hola":  true,
	"hi":    true,
	"hello": true,
}

// isGreeting reports whether the message is a bare greeting.
func isGreeting(message string) bool {
	return greetings[strings.ToLower(strings.TrimSpace(message))]
}

// restart commands accepted in any state.
var restartCommands = map[string]bool{
	"/restart":   true,
	"/reiniciar": true,
}

// isRestartCommand reports whether the message is a session restart.
func isRestartCommand(message string) bool {
	return restartCommands[strings.ToLower(strings.TrimSpace(message))]
}
