// Package events carries change notifications for resources. An in-process
// Broker fans notifications out to per-resource subscribers over channels
// with an explicit subscribe/unsubscribe lifecycle; the optional Redis
// bridge relays notifications between instances so subscribers see writes
// made anywhere in the deployment.
package events
