package config

// DefaultSplits matches the split layout used for the full Wikipedia text dataset
const DefaultSplits = "train=1000000,validation=10000,test=10000," +
	"validation1000=1000,test1000=1000,validation100=100,test100=100," +
	"pretrain=10000,reserve=100000"

// DefaultReasonSplits is the smaller layout used for the reasoning dataset
const DefaultReasonSplits = "test=250,validation=250,train=rest"

// DefaultSystemPrompt is sent with every reasoning request
const DefaultSystemPrompt = "You are a helpful assistant"

// DefaultDescription annotates generated dataset_info.json manifests
const DefaultDescription = "Dataset split information for Hugging Face repository"

// GetDefaultReasonTemplate returns the default user prompt template for
// reasoning collection. {{.Text}} is replaced with the record text.
func GetDefaultReasonTemplate() string {
	return `Teksten nedenfor kan mangle tegnsetting eller ha feil bruk av store og små bokstaver. Skriv teksten på nytt med riktig tegnsetting og riktige store og små bokstaver.

Tekst: {{.Text}}`
}

// DefaultPromptPrefix is the literal instruction placed before the corrupted
// paragraph when assembling training prompts
const DefaultPromptPrefix = `Teksten nedenfor kan mangle tegnsetting eller ha feil bruk av store og små bokstaver. Skriv teksten på nytt med riktig tegnsetting og riktige store og små bokstaver.

Tekst: `
