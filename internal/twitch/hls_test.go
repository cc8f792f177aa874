package twitch

import (
	"testing"

	"dropminer/internal/models"

	"github.com/stretchr/testify/assert"
)

const sampleMaster = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=8000000,RESOLUTION=1920x1080
https://edge.example.net/v1/playlist/chunked.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=1200000,RESOLUTION=852x480
https://edge.example.net/v1/playlist/480p30.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=300000,RESOLUTION=284x160
https://edge.example.net/v1/playlist/160p30.m3u8
`

const sampleMedia = `#EXTM3U
#EXT-X-TARGETDURATION:2
#EXTINF:2.000,
seg-100.ts
#EXTINF:2.000,
seg-101.ts
`

func TestLowestVariant(t *testing.T) {
	assert.Equal(t, "https://edge.example.net/v1/playlist/160p30.m3u8", LowestVariant(sampleMaster))
	assert.Equal(t, "", LowestVariant("#EXTM3U\n#EXT-X-ENDLIST\n"))
	assert.Equal(t, "", LowestVariant(""))
}

func TestLatestSegment(t *testing.T) {
	got := LatestSegment(sampleMedia, "https://edge.example.net/v1/playlist/160p30.m3u8")
	assert.Equal(t, "https://edge.example.net/v1/playlist/seg-101.ts", got)
}

func TestLatestSegmentAbsoluteURL(t *testing.T) {
	media := "#EXTM3U\n#EXTINF:2.000,\nhttps://other.example.net/seg-5.ts\n"
	got := LatestSegment(media, "https://edge.example.net/v1/playlist/160p30.m3u8")
	assert.Equal(t, "https://other.example.net/seg-5.ts", got)
}

func TestLatestSegmentEmptyPlaylist(t *testing.T) {
	assert.Equal(t, "", LatestSegment("#EXTM3U\n", "https://edge.example.net/p.m3u8"))
}

func TestMasterPlaylistURL(t *testing.T) {
	h := NewHLS()
	got := h.MasterPlaylistURL("Streamer", &models.PlaybackToken{Value: "tok", Signature: "sig"})
	assert.Contains(t, got, "https://usher.ttvnw.net/api/channel/hls/streamer.m3u8?")
	assert.Contains(t, got, "sig=sig")
	assert.Contains(t, got, "token=tok")
	assert.Contains(t, got, "allow_source=true")
}
