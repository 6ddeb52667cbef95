package leads

import "errors"

var ErrLeadNotFound = errors.New("leads: not found")
