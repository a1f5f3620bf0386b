// Package card provides the Card Directory for TapGate.
//
// The Card Directory is the registry of physical NFC cards known to the
// system. Each card is identified by its immutable hardware UID, owned by a
// user, and carries an enabled/disabled flag. Cards are created on first
// successful enrollment from a reader and are disabled rather than deleted,
// preserving the audit history of every tap that ever referenced them.
//
// Access rules enforced here, not in the HTTP layer:
//   - Disabling/enabling a card requires the system-configuration
//     permission or ownership of the card
//   - Listing cards returns only the caller's own cards unless the caller
//     is privileged
//
// These are hard invariants: they hold for any caller, including direct
// internal use.
package card
