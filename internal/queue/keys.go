package queue

import "fmt"

// Keys share a hash tag so the Lua scripts touch a single cluster slot.

func ReadyKey(name string) string {
	return fmt.Sprintf("queue:{%s}:ready", name)
}

func ProcessingKey(name string) string {
	return fmt.Sprintf("queue:{%s}:processing", name)
}

func LeaseKey(name string) string {
	return fmt.Sprintf("queue:{%s}:leases", name)
}
