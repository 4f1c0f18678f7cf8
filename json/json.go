// Package json persists the session registry as a single JSON document.
package json

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fwojciec/margin"
	"github.com/tidwall/jsonc"
)

// envelope is the v1 wire format for the persisted registry.
type envelope struct {
	Version  int                     `json:"version"`
	Sessions map[string][]sessionDTO `json:"sessions"`
}

type sessionDTO struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	DocumentRef string       `json:"documentRef"`
	SeedContext string       `json:"seedContext,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
	Messages    []messageDTO `json:"messages"`
}

type messageDTO struct {
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"timestamp"`
	TokenCount int       `json:"tokenCount"`
}

// MarshalRegistry serializes a Registry in v1 envelope format.
func MarshalRegistry(reg *margin.Registry) ([]byte, error) {
	env := envelope{Version: 1, Sessions: make(map[string][]sessionDTO, len(reg.Sessions))}
	for doc, sessions := range reg.Sessions {
		if len(sessions) == 0 {
			continue
		}
		dtos := make([]sessionDTO, len(sessions))
		for i, s := range sessions {
			dtos[i] = marshalSession(s)
		}
		env.Sessions[doc] = dtos
	}
	return json.MarshalIndent(env, "", "  ")
}

// UnmarshalRegistry deserializes a Registry. Comments and trailing commas
// are tolerated so that hand-edited files still load. A missing version is
// read as v1.
func UnmarshalRegistry(data []byte) (*margin.Registry, error) {
	var env envelope
	if err := json.Unmarshal(jsonc.ToJSON(data), &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Version != 0 && env.Version != 1 {
		return nil, fmt.Errorf("unsupported envelope version: %d", env.Version)
	}
	reg := margin.NewRegistry()
	for doc, dtos := range env.Sessions {
		for i, dto := range dtos {
			s, err := unmarshalSession(doc, dto)
			if err != nil {
				return nil, fmt.Errorf("%s session %d: %w", doc, i, err)
			}
			reg.Insert(s)
		}
	}
	return reg, nil
}

func marshalSession(s margin.Session) sessionDTO {
	dto := sessionDTO{
		ID:          s.ID,
		Name:        s.Name,
		DocumentRef: s.DocumentRef,
		SeedContext: s.SeedContext,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
		Messages:    make([]messageDTO, len(s.Messages)),
	}
	for i, m := range s.Messages {
		dto.Messages[i] = messageDTO{
			Role:       string(m.Role),
			Content:    m.Content,
			CreatedAt:  m.CreatedAt,
			TokenCount: m.TokenCount,
		}
	}
	return dto
}

func unmarshalSession(doc string, dto sessionDTO) (margin.Session, error) {
	if dto.ID == "" {
		return margin.Session{}, errors.New("missing id")
	}
	s := margin.Session{
		ID:          dto.ID,
		Name:        dto.Name,
		DocumentRef: doc,
		SeedContext: dto.SeedContext,
		CreatedAt:   dto.CreatedAt,
		UpdatedAt:   dto.UpdatedAt,
		Messages:    make([]margin.Message, len(dto.Messages)),
	}
	for i, m := range dto.Messages {
		role := margin.Role(m.Role)
		if !role.Valid() {
			return margin.Session{}, fmt.Errorf("message %d: unknown role %q", i, m.Role)
		}
		tokens := m.TokenCount
		if tokens == 0 && m.Content != "" {
			tokens = margin.EstimateTokens(m.Content)
		}
		s.Messages[i] = margin.Message{
			Role:       role,
			Content:    m.Content,
			CreatedAt:  m.CreatedAt,
			TokenCount: tokens,
		}
	}
	return s, nil
}
