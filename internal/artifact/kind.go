package artifact

import (
	"path"
	"strings"
)

// Kind names a logical artifact produced by a pipeline step.
type Kind string

const (
	KindRaw        Kind = "raw"
	KindSubsOrigin Kind = "subs_origin"
	KindSubsMM     Kind = "subs_mm"
	KindSubsMMText Kind = "subs_mm_txt"
	KindAudioMM    Kind = "audio_mm"
	KindScenes     Kind = "scenes"
	KindPack       Kind = "pack"
)

type kindSpec struct {
	path       string
	legacyName string
}

var kindSpecs = map[Kind]kindSpec{
	KindRaw:        {path: "raw/raw.mp4", legacyName: "raw.mp4"},
	KindSubsOrigin: {path: "subs/origin.srt", legacyName: "origin.srt"},
	KindSubsMM:     {path: "subs/mm.srt", legacyName: "mm.srt"},
	KindSubsMMText: {path: "subs/mm.txt", legacyName: "mm.txt"},
	KindAudioMM:    {path: "audio/audio_mm.wav", legacyName: "audio_mm.wav"},
	KindScenes:     {path: "scenes/scenes.zip", legacyName: "scenes.zip"},
	KindPack:       {path: "pack/capcut_pack.zip", legacyName: "capcut_pack.zip"},
}

var kindOrder = []Kind{KindRaw, KindSubsOrigin, KindSubsMM, KindSubsMMText, KindAudioMM, KindScenes, KindPack}

var kindAliases = map[string]Kind{
	"subs_my":     KindSubsMM,
	"subs_my_txt": KindSubsMMText,
	"audio_my":    KindAudioMM,
	"audio":       KindAudioMM,
	"raw_video":   KindRaw,
}

// AllKinds returns every known artifact kind in pipeline order.
func AllKinds() []Kind {
	out := make([]Kind, len(kindOrder))
	copy(out, kindOrder)
	return out
}

// ParseKind resolves a client supplied kind name, accepting legacy aliases.
func ParseKind(value string) (Kind, bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	if alias, ok := kindAliases[value]; ok {
		return alias, true
	}
	kind := Kind(value)
	if _, ok := kindSpecs[kind]; ok {
		return kind, true
	}
	return "", false
}

// Valid reports whether the kind is known.
func (k Kind) Valid() bool {
	_, ok := kindSpecs[k]
	return ok
}

// Path is the kind's location relative to its task namespace.
func (k Kind) Path() string {
	return kindSpecs[k].path
}

// FileName is the base name of the stored object.
func (k Kind) FileName() string {
	return path.Base(kindSpecs[k].path)
}

// ContentType is the media type served for the kind.
func (k Kind) ContentType() string {
	return ContentTypeFor(kindSpecs[k].path)
}

var contentTypes = map[string]string{
	".mp4":  "video/mp4",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".zip":  "application/zip",
	".srt":  "text/plain; charset=utf-8",
	".txt":  "text/plain; charset=utf-8",
	".json": "application/json",
}

// ContentTypeFor infers a media type from a file name's extension.
func ContentTypeFor(name string) string {
	if ct, ok := contentTypes[strings.ToLower(path.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

func (k Kind) String() string { return string(k) }
