package domain

import "errors"

// ErrInvalidJob — задание не прошло валидацию.
var ErrInvalidJob = errors.New("invalid sync job")
