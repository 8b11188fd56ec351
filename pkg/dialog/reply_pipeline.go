package dialog

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// sentenceBreakers are the characters the splitter treats as end-of-sentence;
// a sentence is released as soon as its terminator arrives. This drives the incremental
// streaming contract the reply pipeline needs: LLM tokens must reach TTS
// sentence by sentence so the first audio chunk goes out well before
// generation ends, rather than synthesizing the whole response in one call.
const sentenceBreakers = ".!?\n。？！"

// SentenceSplitter accumulates streamed tokens and yields complete
// sentences as they close — on a terminator or once MaxPendingChars is
// reached, whichever comes first — plus whatever trailing partial text
// remains when the stream ends (Flush).
type SentenceSplitter struct {
	// MaxPendingChars forces a flush once the buffer reaches this length
	// even without a terminator. Zero disables the length-based flush.
	MaxPendingChars int

	buf strings.Builder
}

// NewSentenceSplitter builds a splitter that also flushes on length.
func NewSentenceSplitter(maxPendingChars int) *SentenceSplitter {
	return &SentenceSplitter{MaxPendingChars: maxPendingChars}
}

// Push appends a token and returns any sentences it completed, in order.
func (s *SentenceSplitter) Push(token string) []string {
	var out []string
	s.buf.WriteString(token)
	for {
		text := s.buf.String()
		cut := -1
		for i, r := range text {
			if strings.ContainsRune(sentenceBreakers, r) {
				cut = i + len(string(r))
			}
		}
		if cut <= 0 {
			break
		}
		sentence := strings.TrimSpace(text[:cut])
		rest := text[cut:]
		if sentence == "" {
			s.buf.Reset()
			s.buf.WriteString(rest)
			continue
		}
		out = append(out, sentence)
		s.buf.Reset()
		s.buf.WriteString(rest)
	}

	if s.MaxPendingChars > 0 && s.buf.Len() >= s.MaxPendingChars {
		if sentence := strings.TrimSpace(s.buf.String()); sentence != "" {
			out = append(out, sentence)
		}
		s.buf.Reset()
	}
	return out
}

// Flush returns any trailing partial sentence once the stream has ended.
func (s *SentenceSplitter) Flush() string {
	rest := strings.TrimSpace(s.buf.String())
	s.buf.Reset()
	return rest
}

// SpokenChunk is one piece of synthesized audio tagged with the sentence
// sequence it belongs to, so the consumer can preserve ordering even
// though sentence synthesis happens one at a time off a shared queue.
type SpokenChunk struct {
	Seq        int
	Bytes      []byte
	Codec      string
	SampleRate int
	Final      bool // never set by RunReplyPipeline: every chunk it emits has Final == false
}

// ReplyPipelineConfig bounds the backpressure queue between the LLM
// producer and the TTS consumer.
type ReplyPipelineConfig struct {
	QueueCapacity   int
	MaxPendingChars int
}

// RunReplyPipeline drives "LLM tokens -> sentence splitter -> TTS -> onAudio"
// for one turn. It streams LLM tokens via llm.Generate's onToken callback,
// splits them into sentences, queues sentences onto a bounded channel, and
// synthesizes them one at a time in arrival order so TTS never gets more
// than QueueCapacity sentences ahead of what has been spoken. onText is
// called with each completed sentence (for transcript/history bookkeeping)
// before its audio is requested. Returns the full assistant text generated.
//
// Cancellation is cooperative: ctx.Done() stops token generation and TTS
// consumption without either goroutine blocking on the other, and the
// pipeline returns ctx.Err() (or whichever stage's error fired first).
// Producer and consumer run under an errgroup.Group rather than a bare
// WaitGroup plus a side-channel error slot, so either side's error cancels
// the other side's context automatically.
func RunReplyPipeline(
	ctx context.Context,
	llm LLMProvider,
	tts TTSProvider,
	systemPrompt string,
	history []Message,
	userText string,
	voice Voice,
	lang Language,
	cfg ReplyPipelineConfig,
	onText func(sentence string),
	onAudio func(chunk SpokenChunk),
) (string, error) {
	capacity := cfg.QueueCapacity
	if capacity <= 0 {
		capacity = 4
	}

	type queuedSentence struct {
		seq  int
		text string
	}

	queue := make(chan queuedSentence, capacity)

	var fullText strings.Builder
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(queue)
		splitter := NewSentenceSplitter(cfg.MaxPendingChars)
		seq := 0

		err := llm.Generate(gctx, systemPrompt, history, userText, func(token string) error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			mu.Lock()
			fullText.WriteString(token)
			mu.Unlock()

			for _, sentence := range splitter.Push(token) {
				seq++
				select {
				case queue <- queuedSentence{seq: seq, text: sentence}:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
		if err == nil {
			if trailing := splitter.Flush(); trailing != "" {
				seq++
				select {
				case queue <- queuedSentence{seq: seq, text: trailing}:
				case <-gctx.Done():
					err = gctx.Err()
				}
			}
		}
		return err
	})

	g.Go(func() error {
		for qs := range queue {
			if gctx.Err() != nil {
				continue
			}
			if onText != nil {
				onText(qs.text)
			}
			err := tts.Synthesize(gctx, qs.text, voice, lang, func(chunk []byte, codec string, sampleRate int) error {
				if onAudio != nil {
					onAudio(SpokenChunk{Seq: qs.seq, Bytes: chunk, Codec: codec, SampleRate: sampleRate})
				}
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
					return nil
				}
			})
			if err != nil && gctx.Err() == nil {
				return err
			}
			if gctx.Err() != nil {
				return gctx.Err()
			}
		}
		return nil
	})

	err := g.Wait()

	mu.Lock()
	text := fullText.String()
	mu.Unlock()

	if err != nil {
		return text, err
	}
	return text, ctx.Err()
}
