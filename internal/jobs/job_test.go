package jobs

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	job := MessageEmail{To: "bo@example.com", SenderName: "Ana", Content: "hola"}

	env, data, err := Encode(job)
	require.NoError(t, err)
	assert.NotEmpty(t, env.ID)
	assert.Equal(t, KindMessageEmail, env.Kind)
	assert.False(t, env.EnqueuedAt.IsZero())

	decoded, got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, env.ID, decoded.ID)
	assert.Equal(t, job, got)
}

func TestDecodeWireFormat(t *testing.T) {
	data := []byte(`{"id":"j1","kind":"message","payload":{"to":"a@b.c","senderName":"Ana","content":"hi"},"enqueued_at":"2024-01-01T00:00:00Z"}`)
	env, job, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "j1", env.ID)
	assert.Equal(t, MessageEmail{To: "a@b.c", SenderName: "Ana", Content: "hi"}, job)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":     `{`,
		"unknown kind": `{"id":"j1","kind":"sms","payload":{}}`,
		"missing kind": `{"id":"j1","payload":{}}`,
		"bad payload":  `{"id":"j1","kind":"message","payload":{"to":42}}`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := Decode([]byte(input))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestDecodeKeepsEnvelopeOnBadPayload(t *testing.T) {
	env, _, err := Decode([]byte(`{"id":"j9","kind":"sms","payload":{}}`))
	require.Error(t, err)
	assert.Equal(t, "j9", env.ID)
}

func TestRenderMessageEmailEscapes(t *testing.T) {
	subject, html, err := RenderMessageEmail(MessageEmail{
		To:         "bo@example.com",
		SenderName: "Ana",
		Content:    `<script>alert("x")</script>`,
	})
	require.NoError(t, err)
	assert.Equal(t, "New message from Ana", subject)
	assert.Contains(t, html, "Ana")
	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "&lt;script&gt;")
}

func TestNewMailerFallsBackToLog(t *testing.T) {
	m := NewMailer(SMTPConfig{}, zerolog.Nop())
	assert.IsType(t, &LogMailer{}, m)
	assert.NoError(t, m.SendEmail(context.Background(), "a@example.com", "hi", "<p>hi</p>"))

	m = NewMailer(SMTPConfig{Host: "smtp.example.com", Port: 587, From: "no-reply@example.com"}, zerolog.Nop())
	assert.IsType(t, &SMTPMailer{}, m)
}
