package mailer

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/yamdb/apiserver/internal/storage"
)

const outboxPrefix = "outbox/"

// OutboxSender writes each message as an RFC 5322 .eml object instead of
// sending it. Useful for development and for auditing delivered codes.
type OutboxSender struct {
	objects storage.ObjectStorage
	from    string
	now     func() time.Time
}

func NewOutboxSender(objects storage.ObjectStorage, from string) *OutboxSender {
	return &OutboxSender{objects: objects, from: from, now: time.Now}
}

func (o *OutboxSender) Send(ctx context.Context, msg Message) error {
	m, err := render(o.from, msg)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return fmt.Errorf("render message: %w", err)
	}

	key := o.key()
	if err := o.objects.Put(ctx, key, &buf, int64(buf.Len()), "message/rfc822"); err != nil {
		return fmt.Errorf("store %s in %s: %w", key, o.objects.Bucket(), err)
	}
	return nil
}

func (o *OutboxSender) Close() error {
	return o.objects.Close()
}

func (o *OutboxSender) key() string {
	var suffix [4]byte
	_, _ = rand.Read(suffix[:])
	return fmt.Sprintf("%s%s-%s.eml", outboxPrefix, o.now().UTC().Format("20060102T150405.000000000Z"), hex.EncodeToString(suffix[:]))
}
