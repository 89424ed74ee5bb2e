package vtmq

import "fmt"

// UnserializableMessageError indicates a value could not be serialized for
// pushing.
type UnserializableMessageError struct {
	Value interface{}
	Cause error
}

func (e *UnserializableMessageError) Error() string {
	return fmt.Sprintf("cannot serialize message %#v: %s", e.Value, e.Cause)
}

// UndeserializableMessageError indicates a stored payload could not be
// deserialized. The raw payload is still retrievable through the engine.
type UndeserializableMessageError struct {
	ID    string
	Cause error
}

func (e *UndeserializableMessageError) Error() string {
	return fmt.Sprintf("cannot deserialize message %s: %s", e.ID, e.Cause)
}
