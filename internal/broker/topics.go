package broker

import "fmt"

// Topic prefixes for tagbridge MQTT traffic.
//
// Reader topics use the flat scheme: tagbridge/{category}/{reader_id}
const (
	// TopicPrefix is the base for all tagbridge topics.
	TopicPrefix = "tagbridge"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "tagbridge/system"
)

// Topics provides builders for tagbridge MQTT topics. Using these helpers
// keeps topic naming consistent across the codebase.
//
//	topics := broker.Topics{}
//	tagTopic := topics.ReaderTags("dock-door-01")
//	// Returns: "tagbridge/tags/dock-door-01"
type Topics struct{}

// ReaderTags returns the topic a reader publishes tag reads on.
//
// Example: tagbridge/tags/dock-door-01
func (Topics) ReaderTags(readerID string) string {
	return fmt.Sprintf("%s/tags/%s", TopicPrefix, readerID)
}

// AllReaderTags returns the wildcard subscription matching every reader's
// tag stream.
func (Topics) AllReaderTags() string {
	return fmt.Sprintf("%s/tags/+", TopicPrefix)
}

// ReaderStatus returns the topic carrying a reader's connection status.
//
// Example: tagbridge/status/dock-door-01
func (Topics) ReaderStatus(readerID string) string {
	return fmt.Sprintf("%s/status/%s", TopicPrefix, readerID)
}

// SystemStatus returns the topic carrying this service's online status,
// including its Last Will and Testament.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}
