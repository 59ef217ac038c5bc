package dnsecho

import (
	"log/slog"
	"time"

	"github.com/abyss-go/abyss"
	"github.com/abyss-go/abyss/internal/dnswire"
)

// Handler answers A/AAAA queries from a Zone, forwarding A/AAAA names the
// zone doesn't cover to an optional upstream Forwarder; other query types
// get NOTIMP and are not forwarded. Every query is answered
// or refused in a single HandleData call, so it always returns ActionClose:
// this is a stateless, one-shot-per-query protocol, not a session.
type Handler struct {
	abyss.BaseHandler

	Zone      *Zone
	Forwarder *Forwarder // nil disables forwarding; unanswered names get NXDOMAIN
	TTL       uint32
	Logger    *slog.Logger
}

// NewHandler returns a Handler serving zone, with forwarding to upstream if
// non-empty.
func NewHandler(zone *Zone, upstream string, logger *slog.Logger) *Handler {
	var fwd *Forwarder
	if upstream != "" {
		fwd = NewForwarder(upstream, 2*time.Second)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Zone: zone, Forwarder: fwd, TTL: 300, Logger: logger}
}

func (h *Handler) HandleData(dg abyss.Datagram, state any) abyss.Result {
	init, ok := state.(abyss.InitialState)
	if !ok {
		h.Logger.Error("dnsecho: unexpected state type, dropping query")
		return abyss.Result{Action: abyss.ActionClose}
	}

	query, err := dnswire.ParseQuery(dg.Payload)
	if err != nil {
		h.Logger.Debug("dnsecho: malformed query", slog.String("error", err.Error()))
		return abyss.Result{Action: abyss.ActionClose}
	}

	resp := h.buildResponse(query, dg.Payload)
	if resp != nil {
		if err := init.Socket.Send(dg.Source, resp); err != nil {
			h.Logger.Warn("dnsecho: send failed", slog.String("error", err.Error()))
		}
	}
	return abyss.Result{Action: abyss.ActionClose}
}

func (h *Handler) buildResponse(query dnswire.Query, raw []byte) []byte {
	family := 0
	switch query.Question.Type {
	case dnswire.TypeA:
		family = 4
	case dnswire.TypeAAAA:
		family = 6
	default:
		resp, err := dnswire.BuildResponse(query, dnswire.RCodeNotImp, nil)
		if err != nil {
			return nil
		}
		return resp
	}

	ips := h.Zone.Lookup(query.Question.Name, family)
	if len(ips) > 0 {
		answers := make([]dnswire.Answer, 0, len(ips))
		for _, ip := range ips {
			answers = append(answers, dnswire.Answer{
				Name: query.Question.Name,
				Type: query.Question.Type,
				TTL:  h.TTL,
				Addr: ip,
			})
		}
		resp, err := dnswire.BuildResponse(query, dnswire.RCodeOK, answers)
		if err != nil {
			h.Logger.Error("dnsecho: build response", slog.String("error", err.Error()))
			return nil
		}
		return resp
	}

	if h.Forwarder != nil {
		resp, err := h.Forwarder.Forward(raw)
		if err != nil {
			h.Logger.Debug("dnsecho: forward failed", slog.String("error", err.Error()))
		} else {
			return resp
		}
	}

	resp, err := dnswire.BuildResponse(query, dnswire.RCodeNXDomain, nil)
	if err != nil {
		return nil
	}
	return resp
}
