package protocol

import "errors"

var (
	ErrUnrecognizedWord = errors.New("protocol: unrecognized word")
)
