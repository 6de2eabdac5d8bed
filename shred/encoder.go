package shred

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tinylib/msgp/msgp"

	"github.com/siegeai/jch/handler"
	"github.com/siegeai/jch/jsonpath"
	"github.com/siegeai/jch/parser"
)

var (
	ErrUnencodable = errors.New("token cannot be encoded")
	ErrBadNumber   = errors.New("number is not representable")
)

var unsafeChars = strings.NewReplacer(" ", "_", "/", "_")

// FilenameOfPath names the column file for a leaf: its keys joined by '.',
// or "_" when the path has no keys, plus the extension. Indices never take
// part, so all elements of an array share a file.
func FilenameOfPath(p jsonpath.Path, ext string) string {
	return FilenameOfKeys(jsonpath.Canonicalize(p).Keys(), ext)
}

func FilenameOfKeys(keys []string, ext string) string {
	name := "_"
	if len(keys) > 0 {
		name = strings.Join(keys, ".")
	}
	return unsafeChars.Replace(name + "." + ext)
}

// Encoder turns one scalar token into bytes appended to dst.
type Encoder interface {
	Encode(dst []byte, tok parser.Token) ([]byte, error)
	Ext() string
}

// MsgPack writes every scalar as a single MessagePack object.
type MsgPack struct{}

func (MsgPack) Ext() string {
	return "mpk"
}

func (MsgPack) Encode(dst []byte, tok parser.Token) ([]byte, error) {
	switch tok.Kind {
	case parser.String:
		return msgp.AppendString(dst, tok.Text), nil
	case parser.Number:
		if u, err := strconv.ParseUint(tok.Text, 10, 64); err == nil {
			return msgp.AppendUint64(dst, u), nil
		}
		if i, err := strconv.ParseInt(tok.Text, 10, 64); err == nil {
			return msgp.AppendInt64(dst, i), nil
		}
		f, err := strconv.ParseFloat(tok.Text, 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return dst, fmt.Errorf("%w: %q", ErrBadNumber, tok.Text)
		}
		return msgp.AppendFloat64(dst, f), nil
	case parser.Bool:
		return msgp.AppendBool(dst, tok.Bool), nil
	case parser.Null:
		return msgp.AppendNil(dst), nil
	}
	return dst, fmt.Errorf("%w: %s", ErrUnencodable, tok.Kind)
}

// Packer encodes leaves in the producer so the queue carries finished
// bytes.
type Packer struct {
	Encoder Encoder
	Match   handler.MatchFunc
}

func (p Packer) MatchPath(path jsonpath.Path) bool {
	if p.Match == nil {
		return true
	}
	return p.Match(path)
}

func (p Packer) Convert(_ jsonpath.Path, tok parser.Token) ([]byte, error) {
	return p.encoder().Encode(nil, tok)
}

func (p Packer) encoder() Encoder {
	if p.Encoder == nil {
		return MsgPack{}
	}
	return p.Encoder
}

