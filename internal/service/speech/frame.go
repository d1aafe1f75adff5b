package speech

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// 火山引擎语音 websocket 二进制帧：
// 4 字节头 | [sequence] | [event, session id, connect id] | [error code] | payload size | payload

const protocolVersion = 0b0001

type frameKind uint8

const (
	kindClientRequest frameKind = 0b0001
	kindAudioRequest  frameKind = 0b0010
	kindServerFull    frameKind = 0b1001
	kindServerAudio   frameKind = 0b1011
	kindServerError   frameKind = 0b1111
)

type frameFlags uint8

const (
	flagNoSequence   frameFlags = 0b0000
	flagPositiveSeq  frameFlags = 0b0001
	flagLastNoSeq    frameFlags = 0b0010
	flagNegativeSeq  frameFlags = 0b0011
	flagWithEvent    frameFlags = 0b0100
	flagSequenceMask frameFlags = 0b0011
)

type serialization uint8

const (
	serialNone serialization = 0b0000
	serialJSON serialization = 0b0001
)

type compression uint8

const (
	compressNone compression = 0b0000
	compressGzip compression = 0b0001
)

type serverEvent int32

const (
	eventStartConnection    serverEvent = 1
	eventFinishConnection   serverEvent = 2
	eventConnectionStarted  serverEvent = 50
	eventConnectionFailed   serverEvent = 51
	eventConnectionFinished serverEvent = 52
	eventSessionStarted     serverEvent = 150
	eventSessionFinished    serverEvent = 152
	eventSessionFailed      serverEvent = 153
)

var errShortFrame = errors.New("speech frame truncated")

type frame struct {
	kind          frameKind
	flags         frameFlags
	serialization serialization
	compression   compression

	sequence  int32
	event     serverEvent
	sessionID string
	connectID string
	errorCode uint32
	payload   []byte
}

func (f *frame) hasSequence() bool {
	s := f.flags & flagSequenceMask
	return s == flagPositiveSeq || s == flagNegativeSeq
}

func (f *frame) hasEvent() bool {
	return f.flags&flagWithEvent != 0
}

// isLast 最后一包：负序号或无序号尾包
func (f *frame) isLast() bool {
	s := f.flags & flagSequenceMask
	return s == flagLastNoSeq || s == flagNegativeSeq
}

// body 返回解压后的 payload
func (f *frame) body() ([]byte, error) {
	return decompress(f.payload, f.compression)
}

func (f *frame) marshal() []byte {
	var buf bytes.Buffer
	buf.WriteByte(protocolVersion<<4 | 0b0001)
	buf.WriteByte(byte(f.kind)<<4 | byte(f.flags))
	buf.WriteByte(byte(f.serialization)<<4 | byte(f.compression))
	buf.WriteByte(0)

	word := make([]byte, 4)
	putWord := func(v uint32) {
		binary.BigEndian.PutUint32(word, v)
		buf.Write(word)
	}
	putString := func(s string) {
		putWord(uint32(len(s)))
		buf.WriteString(s)
	}

	if f.hasSequence() {
		putWord(uint32(f.sequence))
	}
	if f.hasEvent() {
		putWord(uint32(f.event))
		if !f.event.connectionScoped() {
			putString(f.sessionID)
		}
		if f.event.carriesConnectID() {
			putString(f.connectID)
		}
	}
	if f.kind == kindServerError {
		putWord(f.errorCode)
	}
	putWord(uint32(len(f.payload)))
	buf.Write(f.payload)
	return buf.Bytes()
}

func unmarshalFrame(data []byte) (*frame, error) {
	r := bytes.NewReader(data)
	head := make([]byte, 4)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, fmt.Errorf("%w: header: %v", errShortFrame, err)
	}
	if v := head[0] >> 4; v != protocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", v)
	}
	// 头部扩展按 4 字节对齐，直接跳过
	if extra := int(head[0]&0x0F)*4 - 4; extra > 0 {
		if _, err := r.Seek(int64(extra), io.SeekCurrent); err != nil {
			return nil, fmt.Errorf("%w: header extension: %v", errShortFrame, err)
		}
	}

	f := &frame{
		kind:          frameKind(head[1] >> 4),
		flags:         frameFlags(head[1] & 0x0F),
		serialization: serialization(head[2] >> 4),
		compression:   compression(head[2] & 0x0F),
	}

	readWord := func(field string) (uint32, error) {
		var v uint32
		if err := binary.Read(r, binary.BigEndian, &v); err != nil {
			return 0, fmt.Errorf("%w: %s: %v", errShortFrame, field, err)
		}
		return v, nil
	}
	readBytes := func(field string) ([]byte, error) {
		size, err := readWord(field + " size")
		if err != nil {
			return nil, err
		}
		if int64(size) > int64(r.Len()) {
			return nil, fmt.Errorf("%w: %s wants %d bytes, %d left", errShortFrame, field, size, r.Len())
		}
		out := make([]byte, size)
		_, _ = io.ReadFull(r, out)
		return out, nil
	}

	if f.hasSequence() {
		seq, err := readWord("sequence")
		if err != nil {
			return nil, err
		}
		f.sequence = int32(seq)
	}
	if f.hasEvent() {
		ev, err := readWord("event")
		if err != nil {
			return nil, err
		}
		f.event = serverEvent(int32(ev))
		if !f.event.connectionScoped() {
			id, err := readBytes("session id")
			if err != nil {
				return nil, err
			}
			f.sessionID = string(id)
		}
		if f.event.carriesConnectID() {
			id, err := readBytes("connect id")
			if err != nil {
				return nil, err
			}
			f.connectID = string(id)
		}
	}
	if f.kind == kindServerError {
		code, err := readWord("error code")
		if err != nil {
			return nil, err
		}
		f.errorCode = code
	}
	payload, err := readBytes("payload")
	if err != nil {
		return nil, err
	}
	f.payload = payload
	return f, nil
}

func (e serverEvent) connectionScoped() bool {
	switch e {
	case eventStartConnection, eventFinishConnection,
		eventConnectionStarted, eventConnectionFailed, eventConnectionFinished:
		return true
	}
	return false
}

func (e serverEvent) carriesConnectID() bool {
	switch e {
	case eventConnectionStarted, eventConnectionFailed, eventConnectionFinished:
		return true
	}
	return false
}

// requestFrame 携带 JSON 参数的首包
func requestFrame(payload []byte, method compression) (*frame, error) {
	body, err := compress(payload, method)
	if err != nil {
		return nil, err
	}
	return &frame{
		kind:          kindClientRequest,
		flags:         flagNoSequence,
		serialization: serialJSON,
		compression:   method,
		payload:       body,
	}, nil
}

// audioFrame 音频分包；last 为 true 时序号取负
func audioFrame(chunk []byte, seq int32, last bool) (*frame, error) {
	body, err := compress(chunk, compressGzip)
	if err != nil {
		return nil, err
	}
	f := &frame{
		kind:          kindAudioRequest,
		flags:         flagPositiveSeq,
		serialization: serialNone,
		compression:   compressGzip,
		sequence:      seq,
		payload:       body,
	}
	if last {
		f.flags = flagNegativeSeq
		f.sequence = -seq
	}
	return f, nil
}

func compress(data []byte, method compression) ([]byte, error) {
	switch method {
	case compressNone:
		return data, nil
	case compressGzip:
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			zw.Close()
			return nil, fmt.Errorf("gzip write failed: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("gzip close failed: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported compression method: %d", method)
	}
}

func decompress(data []byte, method compression) ([]byte, error) {
	switch method {
	case compressNone:
		return data, nil
	case compressGzip:
		if len(data) == 0 {
			return nil, nil
		}
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip reader creation failed: %w", err)
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("gzip read failed: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported compression method: %d", method)
	}
}
