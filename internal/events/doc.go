// Package events is the typed observer bus between the session layer and the
// application.
//
// Decrypted items are decoded into an Event sum type (Message, Receipt,
// Typing, Raw) and published to every subscriber of their kind. Subscribers
// may also listen by cipher type. There is no ordering between subscribers.
package events
