package handler

import (
	"time"

	"algodid/internal/registry"
	audit "algodid/pkg/platform/audit"
)

type CreateDIDResponse struct {
	DID            string `json:"did"`
	TxID           string `json:"tx_id"`
	ConfirmedRound uint64 `json:"confirmed_round"`
}

type WriteDocumentResponse struct {
	DID            string   `json:"did"`
	TxID           string   `json:"tx_id"`
	TxIDs          []string `json:"tx_ids"`
	ConfirmedRound uint64   `json:"confirmed_round"`
	Funding        uint64   `json:"funding_microalgos"`
}

type EventResponse struct {
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	TxID      string    `json:"tx_id,omitempty"`
	Round     uint64    `json:"round,omitempty"`
	Funding   uint64    `json:"funding_microalgos,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

type EventsResponse struct {
	DID    string          `json:"did"`
	Events []EventResponse `json:"events"`
}

func toWriteResponse(res *registry.WriteResult) WriteDocumentResponse {
	return WriteDocumentResponse{
		DID:            res.DID.String(),
		TxID:           res.TxID,
		TxIDs:          res.TxIDs,
		ConfirmedRound: res.Round,
		Funding:        res.Funding,
	}
}

func toEventsResponse(did string, events []audit.Event) EventsResponse {
	out := EventsResponse{DID: did, Events: make([]EventResponse, 0, len(events))}
	for _, e := range events {
		out.Events = append(out.Events, EventResponse{
			Action:    e.Action,
			Timestamp: e.Timestamp,
			TxID:      e.TxID,
			Round:     e.Round,
			Funding:   e.Funding,
			Reason:    e.Reason,
		})
	}
	return out
}
