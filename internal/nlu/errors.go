package nlu

import "errors"

var (
	errEmptyResponse = errors.New("empty model response")
	errNoJSON        = errors.New("no JSON object in model response")
)
