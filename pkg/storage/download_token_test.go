package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDownloadTokenSignerGenerateAndParse(t *testing.T) {
	signer := NewDownloadTokenSigner("secret", time.Hour)
	token, expiresAt, err := signer.Generate("item-1", "putaway-PA-ABCDEF1234.pdf")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.False(t, expiresAt.IsZero())

	itemID, path, parsedExpiry, err := signer.Parse(token, false)
	require.NoError(t, err)
	require.Equal(t, "item-1", itemID)
	require.Equal(t, "putaway-PA-ABCDEF1234.pdf", path)
	require.WithinDuration(t, expiresAt, parsedExpiry, time.Second)
}

func TestDownloadTokenSignerExpired(t *testing.T) {
	signer := NewDownloadTokenSigner("secret", time.Millisecond*10)
	token, _, err := signer.Generate("item-1", "putaway-PA-ABCDEF1234.pdf")
	require.NoError(t, err)
	time.Sleep(time.Millisecond * 20)

	_, _, _, err = signer.Parse(token, false)
	require.Error(t, err)

	itemID, path, _, err := signer.Parse(token, true)
	require.NoError(t, err)
	require.Equal(t, "item-1", itemID)
	require.Equal(t, "putaway-PA-ABCDEF1234.pdf", path)
}

func TestDownloadTokenSignerTamperedSignature(t *testing.T) {
	signer := NewDownloadTokenSigner("secret", time.Hour)
	token, _, err := signer.Generate("item-1", "putaway-PA-ABCDEF1234.pdf")
	require.NoError(t, err)

	_, _, _, err = signer.Parse(token+"0", false)
	require.Error(t, err)
}
