package logging

import "time"

// Field represents a structured log field
type Field struct {
	Key   string
	Value interface{}
}

func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Err creates an error field
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Duration creates a duration field in milliseconds
func Duration(key string, d time.Duration) Field {
	return Field{Key: key, Value: d.Milliseconds()}
}

// --- Domain-specific field helpers ---

func UserID(id uint) Field {
	return Field{Key: "user_id", Value: id}
}

func Email(email string) Field {
	return Field{Key: "email", Value: email}
}

func MessageID(id string) Field {
	return Field{Key: "message_id", Value: id}
}

func Folder(name string) Field {
	return Field{Key: "folder", Value: name}
}

func Status(status int) Field {
	return Field{Key: "status", Value: status}
}

func Method(method string) Field {
	return Field{Key: "method", Value: method}
}

func Path(path string) Field {
	return Field{Key: "path", Value: path}
}

func RemoteIP(ip string) Field {
	return Field{Key: "remote_ip", Value: ip}
}

func Count(count int) Field {
	return Field{Key: "count", Value: count}
}
