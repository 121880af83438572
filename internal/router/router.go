// Package router decides how to answer each inbound message: fixed
// conversation flows first, the assistant as fallback.
package router

import (
	"context"
	"fmt"

	"github.com/jortega-dev/warelay/internal/assistant"
	"github.com/jortega-dev/warelay/internal/domain"
	"github.com/jortega-dev/warelay/internal/logging"
	"github.com/jortega-dev/warelay/internal/observability"
	"github.com/jortega-dev/warelay/internal/session"
	"github.com/jortega-dev/warelay/internal/ticket"
	"github.com/jortega-dev/warelay/internal/whatsapp"
)

// ctxTicketSubject is the context key holding a pending ticket's subject.
const ctxTicketSubject = "ticket_subject"

// Fixed user-facing replies, in the deployment's language.
const (
	replyRestarted     = "He reiniciado nuestra conversación. ¿En qué puedo ayudarte?"
	replyWelcome       = "¡Hola %s! Bienvenido. ¿En qué puedo ayudarte hoy?"
	replyAskSubject    = "Parece que necesitas ayuda con un problema. ¿Podrías proporcionar un breve título o asunto para tu ticket de soporte?"
	replyAskDetail     = "Gracias. Por favor describe el problema en detalle."
	replyTicketCreated = "¡Gracias! Tu ticket ha sido creado. Un agente de soporte te contactará pronto."
	replyRunFailed     = "Lo siento, hubo un problema al procesar tu mensaje."
	replyRunTimedOut   = "Lo siento, la respuesta está tomando demasiado tiempo."
)

// Assistant is the conversational fallback port.
type Assistant interface {
	Reply(ctx context.Context, userID, name, message string) assistant.Outcome
}

// Router applies the session state machine to inbound messages and hands
// replies to the notifier. Nothing in Handle propagates an error to the
// webhook response; every failure degrades to a logged event plus a
// best-effort apology.
type Router struct {
	store     *session.Store
	assistant Assistant
	notifier  session.Notifier
	tickets   ticket.Creator
	persister *session.Persister
	metrics   *observability.Metrics
	log       *logging.Logger
}

// New creates a message router. The persister may be nil to disable the
// opportunistic snapshot after each message.
func New(
	store *session.Store,
	asst Assistant,
	notifier session.Notifier,
	tickets ticket.Creator,
	persister *session.Persister,
	metrics *observability.Metrics,
	log *logging.Logger,
) *Router {
	return &Router{
		store:     store,
		assistant: asst,
		notifier:  notifier,
		tickets:   tickets,
		persister: persister,
		metrics:   metrics,
		log:       log.Sub("router"),
	}
}

// Handle processes one inbound text message end to end: session lookup,
// state machine, reply formatting, history bookkeeping, delivery, and an
// opportunistic snapshot.
func (r *Router) Handle(ctx context.Context, msg domain.InboundMessage) {
	log := r.log.WithUser(msg.UserID)
	log.Info().Msg("processing message")
	r.metrics.Message("inbound")

	sess := r.store.GetOrCreate(msg.UserID)
	r.store.AppendHistory(msg.UserID, domain.RoleUser, msg.Body)

	reply := r.decide(ctx, sess, msg)
	reply = whatsapp.FormatText(reply)

	r.store.AppendHistory(msg.UserID, domain.RoleAssistant, reply)

	if err := r.notifier.Notify(ctx, msg.UserID, reply); err != nil {
		log.Error().Err(err).Msg("failed to deliver reply")
	} else {
		r.metrics.Message("outbound")
	}

	// Best-effort durability after each handled message.
	if r.persister != nil {
		r.persister.Save(r.store.Snapshot())
	}
}

// decide runs the state machine and returns the outgoing reply text.
func (r *Router) decide(ctx context.Context, sess domain.Session, msg domain.InboundMessage) string {
	switch {
	case isRestartCommand(msg.Body):
		r.store.Restart(msg.UserID)
		r.metrics.SessionEvent("restarted")
		return replyRestarted

	case sess.State == domain.StateInitial && isGreeting(msg.Body):
		r.setState(msg.UserID, domain.StateAwaitingQuery, nil)
		return fmt.Sprintf(replyWelcome, msg.Name)

	case sess.State == domain.StateTicketCreation:
		return r.ticketStep(ctx, sess, msg)

	case DetectTicketIntent(msg.Body):
		r.setState(msg.UserID, domain.StateTicketCreation, map[string]string{})
		return replyAskSubject

	default:
		return r.assistantReply(ctx, msg)
	}
}

// ticketStep advances the two-step ticket flow: first message is the
// subject, second the description.
func (r *Router) ticketStep(ctx context.Context, sess domain.Session, msg domain.InboundMessage) string {
	subject, ok := sess.Context[ctxTicketSubject]
	if !ok {
		r.store.Apply(msg.UserID, session.Update{
			Context: map[string]string{ctxTicketSubject: msg.Body},
		})
		return replyAskDetail
	}

	// User text is escaped only at this boundary, where it leaves for
	// the external webhook.
	t := ticket.Ticket{
		UserID:      msg.UserID,
		Name:        msg.Name,
		Subject:     whatsapp.SanitizeInput(subject),
		Description: whatsapp.SanitizeInput(msg.Body),
	}
	if err := r.tickets.Create(ctx, t); err != nil {
		r.log.Error().Err(err).Str("user", msg.UserID).Msg("failed to create ticket")
	}

	r.setState(msg.UserID, domain.StateAwaitingQuery, map[string]string{})
	return replyTicketCreated
}

// assistantReply forwards the message to the assistant and maps the
// outcome to user-facing text.
func (r *Router) assistantReply(ctx context.Context, msg domain.InboundMessage) string {
	outcome := r.assistant.Reply(ctx, msg.UserID, msg.Name, msg.Body)
	r.metrics.AssistantOutcome(string(outcome.Status))

	switch outcome.Status {
	case assistant.StatusCompleted:
		return outcome.Text
	case assistant.StatusTimedOut:
		r.log.Warn().Str("user", msg.UserID).Str("reason", outcome.Reason).Msg("assistant timed out")
		return replyRunTimedOut
	default:
		r.log.Error().Str("user", msg.UserID).Str("reason", outcome.Reason).Msg("assistant run failed")
		return replyRunFailed
	}
}

func (r *Router) setState(userID string, state domain.State, context map[string]string) {
	r.store.Apply(userID, session.Update{State: &state, Context: context})
}
