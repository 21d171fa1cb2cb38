package errors

var (
	ErrMessageNotFound  = NotFound("message not found")
	ErrNotMessageOwner  = Forbidden("only the sender may modify this message")
	ErrEmptyContent     = InvalidArg("message content cannot be empty")
	ErrContentConflict  = InvalidArg("exactly one of content or gif reference must be provided")
	ErrGifNotEditable   = InvalidArg("gif messages cannot be edited")
	ErrMissingUserID    = InvalidArg("user id is required")
	ErrMissingMessageID = InvalidArg("message id is required")
	ErrSelfConversation = InvalidArg("sender and receiver must be distinct users")
	ErrInvalidLimit     = InvalidArg("limit must be greater than zero")
	ErrInvalidSortOrder = InvalidArg("sort order must be asc or desc")
	ErrEmptyQuery       = InvalidArg("search query cannot be empty")
)

// PersistenceFailure marks a storage-layer error; the HTTP layer maps it
// to a server error and never retries it.
func PersistenceFailure(cause error) error {
	return Wrap(CodeInternal, "persistence failure", cause)
}
