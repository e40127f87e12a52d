package speech

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-audio/wav"
)

// inspectWAV 校验 WAV 文件头并根据 PCM 数据块计算录音时长
func inspectWAV(data []byte) (time.Duration, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return 0, fmt.Errorf("%w: not a valid WAV file", ErrInvalidAudio)
	}
	if err := decoder.FwdToPCM(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAudio, err)
	}

	bytesPerSecond := int64(decoder.SampleRate) * int64(decoder.NumChans) * int64(decoder.BitDepth) / 8
	if bytesPerSecond == 0 {
		return 0, fmt.Errorf("%w: missing format chunk", ErrInvalidAudio)
	}
	return time.Duration(int64(decoder.PCMSize) * int64(time.Second) / bytesPerSecond), nil
}
