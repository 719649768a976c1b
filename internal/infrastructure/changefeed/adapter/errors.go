package adapter

import "errors"

var errNilHandler = errors.New("changefeed: nil handler")
