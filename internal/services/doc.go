// Package services defines the shared error taxonomy used to classify
// failures across the store, worker, and API layers.
package services
