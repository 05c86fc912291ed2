package exportplaybook

import (
	"encoding/base64"
	"fmt"
	"mime"
	"strings"

	"github.com/google/uuid"
)

const lineLength = 76

// buildRawMessage renders a multipart/mixed message with a plain text body
// and each file as a base64 attachment.
func buildRawMessage(from, to, subject, body string, files []attachment) []byte {
	boundary := "abm-" + uuid.New().String()
	var builder strings.Builder

	builder.WriteString(fmt.Sprintf("From: %s\r\n", from))
	builder.WriteString(fmt.Sprintf("To: %s\r\n", to))
	builder.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject)))
	builder.WriteString("MIME-Version: 1.0\r\n")
	builder.WriteString(fmt.Sprintf("Content-Type: multipart/mixed; boundary=\"%s\"\r\n", boundary))
	builder.WriteString("\r\n")

	builder.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	builder.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	builder.WriteString("Content-Transfer-Encoding: 7bit\r\n")
	builder.WriteString("\r\n")
	builder.WriteString(body)
	builder.WriteString("\r\n")

	for _, f := range files {
		builder.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		builder.WriteString(fmt.Sprintf("Content-Type: %s; charset=UTF-8; name=\"%s\"\r\n", f.contentType, f.name))
		builder.WriteString(fmt.Sprintf("Content-Disposition: attachment; filename=\"%s\"\r\n", f.name))
		builder.WriteString("Content-Transfer-Encoding: base64\r\n")
		builder.WriteString("\r\n")
		writeBase64Lines(&builder, f.data)
	}

	builder.WriteString(fmt.Sprintf("--%s--\r\n", boundary))
	return []byte(builder.String())
}

func writeBase64Lines(builder *strings.Builder, data []byte) {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > lineLength {
		builder.WriteString(encoded[:lineLength])
		builder.WriteString("\r\n")
		encoded = encoded[lineLength:]
	}
	builder.WriteString(encoded)
	builder.WriteString("\r\n")
}
