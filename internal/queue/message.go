package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message is the wire payload that moves a submission through the pipeline.
// It is transient: it exists only between enqueue and consumption. The retry
// count on the message is authoritative for the current delivery attempt.
type Message struct {
	SubmissionID  string    `json:"submissionId"`
	ExamID        string    `json:"examId"`
	StudentID     string    `json:"studentId"`
	FilePaths     []string  `json:"filePaths"`
	SubmittedAt   time.Time `json:"submittedAt"`
	Priority      int       `json:"priority"`
	RetryCount    int       `json:"retryCount"`
	CorrelationID string    `json:"correlationId,omitempty"`
}

// Encode serialises the message for transport.
func (m Message) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode queue message: %w", err)
	}
	return data, nil
}

// Decode parses a message off the wire.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("decode queue message: %w", err)
	}
	if msg.SubmissionID == "" {
		return Message{}, fmt.Errorf("queue message missing submission id")
	}
	return msg, nil
}
