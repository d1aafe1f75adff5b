package speech

import "encoding/binary"

const wavHeaderSize = 44

// wrapPCMAsWAV 给 16bit 单声道 PCM 加上 RIFF 头，供文件上传类接口使用。
func wrapPCMAsWAV(pcm []byte, sampleRate int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	blockAlign := channels * bitsPerSample / 8
	le := binary.LittleEndian

	wav := make([]byte, wavHeaderSize+len(pcm))
	copy(wav[0:4], "RIFF")
	le.PutUint32(wav[4:8], uint32(36+len(pcm)))
	copy(wav[8:12], "WAVE")
	copy(wav[12:16], "fmt ")
	le.PutUint32(wav[16:20], 16)
	le.PutUint16(wav[20:22], 1) // PCM
	le.PutUint16(wav[22:24], channels)
	le.PutUint32(wav[24:28], uint32(sampleRate))
	le.PutUint32(wav[28:32], uint32(sampleRate*blockAlign))
	le.PutUint16(wav[32:34], uint16(blockAlign))
	le.PutUint16(wav[34:36], bitsPerSample)
	copy(wav[36:40], "data")
	le.PutUint32(wav[40:44], uint32(len(pcm)))
	copy(wav[wavHeaderSize:], pcm)
	return wav
}
