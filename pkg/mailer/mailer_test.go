package mailer

import (
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	body, err := Render(TemplateVerifyEmail, "Linh", "482913", 5*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, body, "482913")
	assert.Contains(t, body, "Linh")
	assert.Contains(t, body, "5 minutes")
	assert.Contains(t, body, "Email Verification")

	body, err = Render(TemplatePasswordReset, "", "000111", 30*time.Second)
	require.NoError(t, err)
	assert.Contains(t, body, "Password Reset")
	assert.Contains(t, body, "Hi <strong>there</strong>")
	assert.Contains(t, body, "1 minutes")

	_, err = Render(Template("welcome"), "x", "1", time.Minute)
	assert.Error(t, err)
}

func TestRender_EscapesName(t *testing.T) {
	body, err := Render(TemplateVerifyEmail, "<script>", "123456", time.Minute)
	require.NoError(t, err)
	assert.NotContains(t, body, "<script>")
	assert.Contains(t, body, "&lt;script&gt;")
}

func TestSendOTP(t *testing.T) {
	m := New(Config{Host: "smtp.test", Port: "587", From: "no-reply@studymate.app", FromName: "StudyMate"})

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		assert.Nil(t, a)
		return nil
	}

	require.NoError(t, m.SendOTP(TemplateVerifyEmail, "student@example.com", "An", "123456", 5*time.Minute))
	assert.Equal(t, "smtp.test:587", gotAddr)
	assert.Equal(t, "no-reply@studymate.app", gotFrom)
	assert.Equal(t, []string{"student@example.com"}, gotTo)

	msg := string(gotMsg)
	assert.True(t, strings.HasPrefix(msg, "From: StudyMate <no-reply@studymate.app>\r\n"))
	assert.Contains(t, msg, "Subject: StudyMate - Verify your email address\r\n")
	assert.Contains(t, msg, "123456")
}

func TestSendOTP_Errors(t *testing.T) {
	m := New(Config{Host: "smtp.test", Port: "25"})
	m.send = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}

	err := m.SendOTP(TemplatePasswordReset, "a@b.c", "A", "123456", time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")

	err = m.SendOTP(TemplatePasswordReset, "a@b.c\r\nBcc: x@y.z", "A", "123456", time.Minute)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}
