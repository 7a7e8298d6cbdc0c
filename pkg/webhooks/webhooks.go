package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/dataroomhq/dataroom/pkg/apierror"
	"github.com/dataroomhq/dataroom/pkg/docstore"
	"github.com/dataroomhq/dataroom/pkg/events"
)

// Collection is the internal store collection holding subscriptions. It is
// not a resource collection and never passes through the engine's adapter.
const Collection = "webhook_subscriptions"

// Subscription is a registered delivery target.
type Subscription struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Secret string `json:"secret,omitempty"`
	// ResourceTypes filters deliveries; empty means all types.
	ResourceTypes []string `json:"resourceTypes,omitempty"`
	// Operations filters deliveries; empty means all operations.
	Operations  []string  `json:"operations,omitempty"`
	Active      bool      `json:"active"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Matches reports whether the subscription wants the notification.
func (s *Subscription) Matches(n events.Notification) bool {
	if !s.Active {
		return false
	}
	if len(s.ResourceTypes) > 0 && !contains(s.ResourceTypes, n.ResourceType) {
		return false
	}
	if len(s.Operations) > 0 && !contains(s.Operations, string(n.Operation)) {
		return false
	}
	return true
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

var knownOperations = []string{
	string(events.OperationCreated),
	string(events.OperationUpdated),
	string(events.OperationDeleted),
	string(events.OperationFileUploaded),
}

// Manager persists subscriptions in the document store.
type Manager struct {
	store docstore.Store
}

// NewManager creates a Manager backed by store.
func NewManager(store docstore.Store) *Manager {
	return &Manager{store: store}
}

// Create validates and stores a new subscription. The id and timestamps are
// assigned server-side.
func (m *Manager) Create(ctx context.Context, sub *Subscription) error {
	if err := validate(sub); err != nil {
		return err
	}
	sub.ID = uuid.NewString()
	sub.Active = true
	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now

	if _, err := m.store.InsertOne(ctx, Collection, toDoc(sub)); err != nil {
		return fmt.Errorf("failed to store webhook subscription: %w", err)
	}
	return nil
}

// Get returns one subscription by id.
func (m *Manager) Get(ctx context.Context, id string) (*Subscription, error) {
	doc, err := m.store.FindOne(ctx, Collection, docstore.ByID(id), nil)
	if err == docstore.ErrNoDocuments {
		return nil, apierror.NotFoundf("webhook subscription %q not found", id)
	}
	if err != nil {
		return nil, err
	}
	return fromDoc(doc), nil
}

// List returns all subscriptions.
func (m *Manager) List(ctx context.Context) ([]*Subscription, error) {
	docs, err := m.store.Find(ctx, Collection, docstore.Filter{}, &docstore.FindOptions{
		Sort: docstore.Sort{"createdAt": 1},
	})
	if err != nil {
		return nil, err
	}
	subs := make([]*Subscription, 0, len(docs))
	for _, doc := range docs {
		subs = append(subs, fromDoc(doc))
	}
	return subs, nil
}

// Active returns all active subscriptions.
func (m *Manager) Active(ctx context.Context) ([]*Subscription, error) {
	docs, err := m.store.Find(ctx, Collection, docstore.Filter{"active": true}, nil)
	if err != nil {
		return nil, err
	}
	subs := make([]*Subscription, 0, len(docs))
	for _, doc := range docs {
		subs = append(subs, fromDoc(doc))
	}
	return subs, nil
}

// SetActive toggles a subscription without touching its filters.
func (m *Manager) SetActive(ctx context.Context, id string, active bool) error {
	_, err := m.store.UpdateOne(ctx, Collection, docstore.ByID(id), docstore.Doc{
		"active":    active,
		"updatedAt": time.Now().UTC(),
	})
	if err == docstore.ErrNoDocuments {
		return apierror.NotFoundf("webhook subscription %q not found", id)
	}
	return err
}

// Delete removes a subscription.
func (m *Manager) Delete(ctx context.Context, id string) error {
	err := m.store.DeleteOne(ctx, Collection, docstore.ByID(id))
	if err == docstore.ErrNoDocuments {
		return apierror.NotFoundf("webhook subscription %q not found", id)
	}
	return err
}

func validate(sub *Subscription) error {
	if sub.URL == "" {
		return apierror.BadRequestf("webhook url is required")
	}
	parsed, err := url.Parse(sub.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return apierror.BadRequestf("webhook url %q is not a valid http(s) url", sub.URL)
	}
	for _, op := range sub.Operations {
		if !contains(knownOperations, op) {
			return apierror.BadRequestf("unknown operation %q", op)
		}
	}
	return nil
}

func toDoc(sub *Subscription) docstore.Doc {
	return docstore.Doc{
		docstore.FieldID: sub.ID,
		"url":            sub.URL,
		"secret":         sub.Secret,
		"resourceTypes":  toAnySlice(sub.ResourceTypes),
		"operations":     toAnySlice(sub.Operations),
		"active":         sub.Active,
		"description":    sub.Description,
		"createdAt":      sub.CreatedAt,
		"updatedAt":      sub.UpdatedAt,
	}
}

func fromDoc(doc docstore.Doc) *Subscription {
	sub := &Subscription{
		ID:            stringField(doc, docstore.FieldID),
		URL:           stringField(doc, "url"),
		Secret:        stringField(doc, "secret"),
		ResourceTypes: stringSliceField(doc, "resourceTypes"),
		Operations:    stringSliceField(doc, "operations"),
		Description:   stringField(doc, "description"),
	}
	sub.Active, _ = doc["active"].(bool)
	sub.CreatedAt = timeField(doc, "createdAt")
	sub.UpdatedAt = timeField(doc, "updatedAt")
	return sub
}

func toAnySlice(in []string) []any {
	out := make([]any, 0, len(in))
	for _, s := range in {
		out = append(out, s)
	}
	return out
}

func stringField(doc docstore.Doc, key string) string {
	s, _ := doc[key].(string)
	return s
}

func stringSliceField(doc docstore.Doc, key string) []string {
	raw, ok := doc[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func timeField(doc docstore.Doc, key string) time.Time {
	switch v := doc[key].(type) {
	case time.Time:
		return v
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Sign computes the delivery signature for a payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature against the payload.
func VerifySignature(payload []byte, signature, secret string) bool {
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(signature))
}
