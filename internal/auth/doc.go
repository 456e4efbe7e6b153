// Package auth decides who may talk to the relay.
//
// Chat users live in a Registry persisted as a JSON file (users.json). Each
// user is either a plain user or an admin and can be deactivated without
// being removed. The role to permission mapping in permissions.go is the
// single place that says which commands need admin rights.
//
// Devices do not have user records. When a JWT secret is configured the
// relay issues each registered device an HS256 token whose subject is the
// device id (see GenerateDeviceToken).
package auth
