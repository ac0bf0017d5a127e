// Package jwt issues and verifies the signed grants handed out after a phone
// number was verified, using configured signing keys and strict validation.
package jwt
