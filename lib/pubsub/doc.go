// Package pubsub implements a topic broadcaster.
//
// Subscribers get a unique id and a bounded queue. Publish snapshots the
// subscriber set of a topic and delivers in the background, so a slow
// subscriber delays only later messages of the same publish. A subscriber whose
// receiving side was closed is removed the next time a publish reaches it.
//
// No map lock is held while sending on a subscription queue.
package pubsub
