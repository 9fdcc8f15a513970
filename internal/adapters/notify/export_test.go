package notify

// NewRedisStreamWith expone el constructor con un cliente falso para tests.
var NewRedisStreamWith = newRedisStream
