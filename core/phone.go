package core

import (
	"strings"
	"unicode"
)

const (
	CustomerKeyPhone = "phone"
	CustomerKeyEmail = "email"
)

// CustomerKey is one normalized contact value used to match customers.
type CustomerKey struct {
	Field string
	Value string
}

func (k CustomerKey) IsZero() bool {
	return k.Field == "" || k.Value == ""
}

// String renders the key in the form stored in the customer dedup column.
func (k CustomerKey) String() string {
	if k.IsZero() {
		return ""
	}
	return k.Field + ":" + k.Value
}

// NormalizePhone strips formatting and turns a leading 00 into +. Values
// with fewer than five digits are rejected.
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	var b strings.Builder
	digits := 0
	for _, r := range raw {
		switch {
		case r == '+' && b.Len() == 0:
			b.WriteRune(r)
		case unicode.IsDigit(r):
			b.WriteRune(r)
			digits++
		}
	}
	if digits < 5 {
		return ""
	}
	phone := b.String()
	if strings.HasPrefix(phone, "00") {
		phone = "+" + strings.TrimPrefix(phone, "00")
	}
	return phone
}

func NormalizeEmail(raw string) string {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return ""
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return ""
	}
	return email
}

// EventCustomerKeys returns the contact keys of event. An email-channel event
// without an email entity is keyed by its normalized sender address.
func EventCustomerKeys(event NormalizedEvent, priority DedupPriority) []CustomerKey {
	entities := event.Entities
	if event.Channel == ChannelEmail && NormalizeEmail(entities[EntityEmail]) == "" {
		if sender := NormalizeEmail(event.Sender); sender != "" {
			entities = make(map[string]string, len(event.Entities)+1)
			for key, value := range event.Entities {
				entities[key] = value
			}
			entities[EntityEmail] = sender
		}
	}
	return CustomerKeys(entities, priority)
}

// CustomerKeys returns the usable contact keys of entities ordered by priority.
func CustomerKeys(entities map[string]string, priority DedupPriority) []CustomerKey {
	phone := CustomerKey{Field: CustomerKeyPhone, Value: NormalizePhone(entities[EntityPhone])}
	email := CustomerKey{Field: CustomerKeyEmail, Value: NormalizeEmail(entities[EntityEmail])}
	ordered := []CustomerKey{phone, email}
	if priority == DedupEmailFirst {
		ordered = []CustomerKey{email, phone}
	}
	keys := make([]CustomerKey, 0, len(ordered))
	for _, key := range ordered {
		if !key.IsZero() {
			keys = append(keys, key)
		}
	}
	return keys
}
