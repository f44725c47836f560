package storage

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeebo/xxh3"

	"tsvload/internal/errors"
	"tsvload/pkg/records"
)

// Encoder turns a document into a message payload.
type Encoder interface {
	Encode(doc records.Document) ([]byte, error)
	ContentType() string
}

// EncoderFor returns the encoder named by name: "json" (also the default
// for an empty name) or "msgpack".
func EncoderFor(name string) (Encoder, error) {
	switch name {
	case "", "json":
		return JSONEncoder{}, nil
	case "msgpack":
		return MsgpackEncoder{}, nil
	default:
		return nil, errors.Newf(errors.ErrConfig, "unknown storage.encoding %q", name)
	}
}

// JSONEncoder writes the document as a JSON object in header order.
type JSONEncoder struct{}

func (JSONEncoder) Encode(doc records.Document) ([]byte, error) { return json.Marshal(doc) }
func (JSONEncoder) ContentType() string                         { return "application/json" }

// MsgpackEncoder writes the document as a MessagePack map in header order.
type MsgpackEncoder struct{}

func (MsgpackEncoder) ContentType() string { return "application/msgpack" }

func (MsgpackEncoder) Encode(doc records.Document) ([]byte, error) {
	return msgpack.Marshal(msgpackDoc(doc))
}

type msgpackDoc records.Document

var _ msgpack.CustomEncoder = msgpackDoc{}

func (d msgpackDoc) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeMapLen(len(d.Fields)); err != nil {
		return err
	}
	for _, f := range d.Fields {
		if err := enc.EncodeString(f.Name); err != nil {
			return err
		}
		if err := enc.Encode(f.Value); err != nil {
			return err
		}
	}
	return nil
}

// Fingerprint hashes an encoded document. SQL backends store it next to the
// document and skip updates whose fingerprint did not change.
func Fingerprint(b []byte) int64 {
	return int64(xxh3.Hash(b))
}
