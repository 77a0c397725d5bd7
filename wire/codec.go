// Package wire implements the multipart message framing and HMAC
// authentication of the kernel messaging protocol.
//
// Frame layout:
//
//	[identities..., "<IDS|MSG>", signature, header, parent_header, metadata, content, buffers...]
package wire

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Delimiter separates routing identities from the signed message body.
const Delimiter = "<IDS|MSG>"

// minBodyFrames is signature + header + parent + metadata + content.
const minBodyFrames = 5

// FrameErrorKind classifies decode failures.
type FrameErrorKind int

const (
	// FrameErrorMalformed indicates a missing delimiter or too few frames.
	FrameErrorMalformed FrameErrorKind = iota
	// FrameErrorAuth indicates a signature mismatch.
	FrameErrorAuth
)

func (k FrameErrorKind) String() string {
	switch k {
	case FrameErrorMalformed:
		return "malformed"
	case FrameErrorAuth:
		return "auth"
	default:
		return fmt.Sprintf("FrameErrorKind(%d)", int(k))
	}
}

// FrameError is returned by Decode. Messages failing with either kind are
// dropped without a reply.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err is a signature mismatch.
func IsAuthError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.Kind == FrameErrorAuth
	}
	return false
}

// IsMalformed reports whether err is a framing failure.
func IsMalformed(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.Kind == FrameErrorMalformed
	}
	return false
}

// Sign computes the hex-encoded HMAC-SHA256 over parts in order.
// An empty key yields the empty signature (unauthenticated mode).
func Sign(key []byte, parts ...[]byte) string {
	if len(key) == 0 {
		return ""
	}
	mac := hmac.New(sha256.New, key)
	for _, p := range parts {
		mac.Write(p)
	}
	return hex.EncodeToString(mac.Sum(nil))
}

// Decode parses raw frames into a Message, verifying the signature when key
// is non-empty. Unparsable blobs decode to an empty Dict.
func Decode(frames [][]byte, key []byte) (*Message, error) {
	delim := -1
	for i, f := range frames {
		if bytes.Equal(f, []byte(Delimiter)) {
			delim = i
			break
		}
	}
	if delim < 0 {
		return nil, &FrameError{Kind: FrameErrorMalformed, Msg: "delimiter frame not found"}
	}

	body := frames[delim+1:]
	if len(body) < minBodyFrames {
		return nil, &FrameError{
			Kind: FrameErrorMalformed,
			Msg:  fmt.Sprintf("expected at least %d frames after delimiter, got %d", minBodyFrames, len(body)),
		}
	}

	sig, header, parent, metadata, content := body[0], body[1], body[2], body[3], body[4]

	if len(key) > 0 {
		expected := Sign(key, header, parent, metadata, content)
		if !hmac.Equal([]byte(expected), sig) {
			return nil, &FrameError{Kind: FrameErrorAuth, Msg: "signature mismatch"}
		}
	}

	msg := &Message{
		Identities:   copyFrames(frames[:delim]),
		Header:       decodeDict(header),
		ParentHeader: decodeDict(parent),
		Metadata:     decodeDict(metadata),
		Content:      decodeDict(content),
		Buffers:      copyFrames(body[minBodyFrames:]),
	}
	return msg, nil
}

// Encode serializes msg into frames signed with key.
func Encode(msg *Message, key []byte) ([][]byte, error) {
	header, err := encodeDict(msg.Header)
	if err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	parent, err := encodeDict(msg.ParentHeader)
	if err != nil {
		return nil, fmt.Errorf("encode parent header: %w", err)
	}
	metadata, err := encodeDict(msg.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	content, err := encodeDict(msg.Content)
	if err != nil {
		return nil, fmt.Errorf("encode content: %w", err)
	}

	frames := make([][]byte, 0, len(msg.Identities)+1+minBodyFrames+len(msg.Buffers))
	frames = append(frames, msg.Identities...)
	frames = append(frames,
		[]byte(Delimiter),
		[]byte(Sign(key, header, parent, metadata, content)),
		header,
		parent,
		metadata,
		content,
	)
	frames = append(frames, msg.Buffers...)
	return frames, nil
}

// decodeDict parses raw as a JSON object, keeping numbers as json.Number
// so integers beyond 2^53 re-encode exactly. Anything else yields {}.
func decodeDict(raw []byte) Dict {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var d Dict
	if err := dec.Decode(&d); err != nil || d == nil {
		return Dict{}
	}
	if _, err := dec.Token(); err != io.EOF {
		return Dict{}
	}
	return d
}

// encodeDict marshals d, rendering a nil Dict as {}.
func encodeDict(d Dict) ([]byte, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d)
}

func copyFrames(frames [][]byte) [][]byte {
	if len(frames) == 0 {
		return nil
	}
	out := make([][]byte, len(frames))
	for i, f := range frames {
		out[i] = append([]byte(nil), f...)
	}
	return out
}
