package emailsvc

import (
	"bytes"
	"log"
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/sapp/core"
	logsvc "github.com/trezcool/sapp/services/logger"
)

func newMock(t *testing.T) *ConsoleServiceMock {
	t.Helper()
	conf := &core.Config{AppName: "Sapp", FrontendBaseURL: "http://school.test", TestMode: true}
	logger := logsvc.NewRollbarLogger(log.New(new(bytes.Buffer), "", 0), conf)
	return NewConsoleServiceMock(conf, logger)
}

func TestConsoleServiceMock(t *testing.T) {
	svc := newMock(t)

	svc.SendMessages(
		&core.EmailMessage{
			To:           []mail.Address{{Name: "Ann", Address: "ann@x.io"}},
			Subject:      "Your password was changed",
			TemplateName: "password_changed",
			TemplateData: map[string]interface{}{"Name": "Ann", "Email": "ann@x.io", "Role": "teacher"},
		},
		&core.EmailMessage{Subject: "no recipients", BodyStr: "dropped"},
		&core.EmailMessage{To: []mail.Address{{Address: "bob@x.io"}}, Subject: "plain", BodyStr: "hello"},
	)

	sent := svc.Sent()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0].TextContent, "Hello Ann")
	assert.Contains(t, sent[0].TextContent, "http://school.test")
	assert.Contains(t, sent[0].HTMLContent, "ann@x.io")
	assert.Equal(t, "hello", sent[1].TextContent)

	svc.Reset()
	assert.Empty(t, svc.Sent())
}

func TestConsoleService_format(t *testing.T) {
	svc := newMock(t)
	msg := core.EmailMessage{
		To:          []mail.Address{{Address: "ann@x.io"}},
		Subject:     "report",
		TextContent: "see attached",
	}
	require.NoError(t, msg.Attach(strings.NewReader("a,b\n1,2\n"), "report.csv", "text/csv"))

	body, err := svc.format(msg)
	require.NoError(t, err)
	assert.Contains(t, body, "Subject: [Sapp] report")
	assert.Contains(t, body, "multipart/mixed")
	assert.Contains(t, body, "filename=report.csv")
}
