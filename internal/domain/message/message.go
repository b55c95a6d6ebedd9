// Package message models the chat and system messages of a dispute session.
package message

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/canal-compras/disputa/internal/codec"
	"github.com/canal-compras/disputa/internal/domain/identity"
)

const MaxContentLength = 2000

var (
	ErrEmptyContent   = errors.New("message content is empty")
	ErrContentTooLong = errors.New("message content exceeds 2000 characters")
)

type Kind string

const (
	KindChat   Kind = "CHAT"
	KindSystem Kind = "SYSTEM"
)

type Visibility string

const (
	VisibilityPublic  Visibility = "PUBLIC"
	VisibilityPrivate Visibility = "PRIVATE"
)

// Message is immutable once appended. Hash links it to the previous message of the tender.
type Message struct {
	ID          string        `json:"id"`
	TenderID    string        `json:"tenderId"`
	LotID       string        `json:"lotId,omitempty"`
	Seq         int64         `json:"seq"`
	Kind        Kind          `json:"kind"`
	AuthorID    string        `json:"authorId"`
	AuthorName  string        `json:"authorName"`
	AuthorRole  identity.Role `json:"authorRole"`
	Content     string        `json:"content"`
	Visibility  Visibility    `json:"visibility"`
	RecipientID string        `json:"recipientId,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	PrevHash    string        `json:"prevHash"`
	Hash        string        `json:"hash"`
}

// NormalizeContent trims and bounds chat text.
func NormalizeContent(raw string) (string, error) {
	content := strings.TrimSpace(raw)
	if content == "" {
		return "", ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return "", ErrContentTooLong
	}
	return content, nil
}

func (m *Message) IsPrivate() bool {
	return m.Visibility == VisibilityPrivate
}

// VisibleTo applies the message audience rule: public messages reach everyone,
// private ones reach the recipient and the viewers privileged for agencyID.
func (m *Message) VisibleTo(viewer identity.Caller, agencyID string) bool {
	if !m.IsPrivate() {
		return true
	}
	if viewer.PrivilegedFor(agencyID) {
		return true
	}
	return viewer.Matches(m.RecipientID)
}

// Filter returns the messages viewer may read on a tender of agencyID, in order.
func Filter(msgs []Message, viewer identity.Caller, agencyID string) []Message {
	out := make([]Message, 0, len(msgs))
	for i := range msgs {
		if msgs[i].VisibleTo(viewer, agencyID) {
			out = append(out, msgs[i])
		}
	}
	return out
}

type chainInput struct {
	ID          string
	TenderID    string
	LotID       string
	Seq         int64
	Kind        Kind
	AuthorID    string
	AuthorRole  identity.Role
	Content     string
	Visibility  Visibility
	RecipientID string
	CreatedAt   time.Time
}

// Seal computes the chain hash of m over prev and stores both on m.
func (m *Message) Seal(prev string) error {
	h, err := m.chainHash(prev)
	if err != nil {
		return err
	}
	m.PrevHash = prev
	m.Hash = h
	return nil
}

func (m *Message) chainHash(prev string) (string, error) {
	return codec.ChainHash(prev, chainInput{
		ID:          m.ID,
		TenderID:    m.TenderID,
		LotID:       m.LotID,
		Seq:         m.Seq,
		Kind:        m.Kind,
		AuthorID:    m.AuthorID,
		AuthorRole:  m.AuthorRole,
		Content:     m.Content,
		Visibility:  m.Visibility,
		RecipientID: m.RecipientID,
		CreatedAt:   m.CreatedAt.UTC(),
	})
}

// VerifyChain returns the index of the first broken link, or -1 when the chain holds.
func VerifyChain(msgs []Message) (int, error) {
	prev := ""
	for i := range msgs {
		m := &msgs[i]
		if m.PrevHash != prev {
			return i, nil
		}
		h, err := m.chainHash(prev)
		if err != nil {
			return i, err
		}
		if h != m.Hash {
			return i, nil
		}
		prev = m.Hash
	}
	return -1, nil
}
