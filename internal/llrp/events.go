//
// Copyright (C) 2021 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package llrp

// ConnectionAttemptEvent is the status a reader reports
// when a client attempts to connect to it.
type ConnectionAttemptEvent uint16

const (
	ConnSuccess                         = ConnectionAttemptEvent(0)
	ConnFailedReaderInitiatedConnExists = ConnectionAttemptEvent(1)
	ConnFailedClientInitiatedConnExists = ConnectionAttemptEvent(2)
	ConnFailedReasonOtherThanConnExists = ConnectionAttemptEvent(3)
	ConnAnotherConnAttempted            = ConnectionAttemptEvent(4)
)

// ConnectionCloseEvent carries no data; its presence signals the connection closed.
type ConnectionCloseEvent struct{}

// ReaderEventNotificationData holds the connection-related parts
// of an LLRP ReaderEventNotification.
// Other notification data is ignored.
type ReaderEventNotificationData struct {
	ConnectionAttemptEvent *ConnectionAttemptEvent `json:",omitempty"`
	ConnectionCloseEvent   *ConnectionCloseEvent   `json:",omitempty"`
}

// ReaderEventNotification is published by the device service
// as the value of a ReaderEventNotification reading.
type ReaderEventNotification struct {
	ReaderEventNotificationData ReaderEventNotificationData
}

// Connected reports whether the notification announces a successful connection.
func (n *ReaderEventNotification) Connected() bool {
	ev := n.ReaderEventNotificationData.ConnectionAttemptEvent
	return ev != nil && *ev == ConnSuccess
}

// Closed reports whether the notification announces a closed connection.
func (n *ReaderEventNotification) Closed() bool {
	return n.ReaderEventNotificationData.ConnectionCloseEvent != nil
}
