// Package mfasdk is the Go client for the MFA gateway and the home of its
// wire types. The server encodes these same structs, so a client built from
// this package always matches the API it talks to.
//
// Typical password plus TOTP login:
//
//	c := mfasdk.NewSDKClient("http://localhost:8080")
//	res, err := c.Login(ctx, userID, password)
//	if err != nil {
//		return err
//	}
//	switch {
//	case res.PasswordChangeRequired:
//		// c.ChangeTemporaryPassword(...)
//	case res.RequiresMFA:
//		sess, err := c.StepUp(res.Token).VerifyTOTP(ctx, code)
//		...
//	default:
//		sess := c.NewSession(res.Token)
//		...
//	}
//
// Failed calls return *APIError; compare with errors.Is against the
// predefined errors (ErrLocked, ErrExpired, ...) which match on the error
// code only.
package mfasdk
