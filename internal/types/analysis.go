// internal/types/analysis.go
package types

// AnalysisKind tags which report shape an Analysis carries.
type AnalysisKind string

const (
	KindGeneric AnalysisKind = "generic"
	KindBucket  AnalysisKind = "bucket"
)

// --------------------------------------------
// Analysis is a tagged variant: exactly one of
// Generic or Bucket is set, matching Kind.
// --------------------------------------------
type Analysis struct {
	Rubric  string         `json:"rubric" bson:"rubric"`
	Version string         `json:"version" bson:"version"`
	Kind    AnalysisKind   `json:"kind" bson:"kind"`
	Generic *GenericReport `json:"generic,omitempty" bson:"generic,omitempty"`
	Bucket  *BucketReport  `json:"bucket,omitempty" bson:"bucket,omitempty"`
}

// TotalScore reports the model-provided total. Only bucket rubrics carry one.
func (a Analysis) TotalScore() (float64, bool) {
	if a.Kind == KindBucket && a.Bucket != nil {
		return a.Bucket.TotalScore, true
	}
	return 0, false
}

// --------------------------------------------
// Generic rubric report
// --------------------------------------------
type GenericReport struct {
	CallDisposition              string        `json:"call_disposition" bson:"call_disposition" validate:"required"`
	CallSummary                  string        `json:"call_summary" bson:"call_summary" validate:"required"`
	Purpose                      string        `json:"purpose" bson:"purpose" validate:"required"`
	AreaOfImprovement            *string       `json:"area_of_improvement" bson:"area_of_improvement"`
	Scores                       GenericScores `json:"scores" bson:"scores"`
	ReasonForDelay               *string       `json:"reason_for_delay" bson:"reason_for_delay"`
	Remark                       *string       `json:"remark" bson:"remark"`
	IncorrectInfoFalseCommitment string        `json:"incorrect_info_false_commitment" bson:"incorrect_info_false_commitment"`
	RudenessUnprofessionalism    string        `json:"rudeness_unprofessionalism" bson:"rudeness_unprofessionalism"`
	CRMProtocolDisposition       string        `json:"crm_protocol_disposition" bson:"crm_protocol_disposition"`
	Positives                    []string      `json:"positives" bson:"positives" validate:"required"`
	Improvements                 []string      `json:"improvements" bson:"improvements" validate:"required"`
	MarkedTranscript             string        `json:"marked_transcript" bson:"marked_transcript"`
}

// GenericScores are 0–10 integer sub-scores.
type GenericScores struct {
	GreetingCustomerIdentification int `json:"greeting_customer_identification" bson:"greeting_customer_identification" validate:"min=0,max=10"`
	SelfIntroductionReachingParty  int `json:"self_introduction_reaching_party" bson:"self_introduction_reaching_party" validate:"min=0,max=10"`
	PurposeOfCall                  int `json:"purpose_of_call" bson:"purpose_of_call" validate:"min=0,max=10"`
	CompleteCorrectInfoMinorImpact int `json:"complete_correct_info_minor_impact" bson:"complete_correct_info_minor_impact" validate:"min=0,max=10"`
	EffectiveProbing               int `json:"effective_probing" bson:"effective_probing" validate:"min=0,max=10"`
	ObjectionHandlingResolution    int `json:"objection_handling_resolution" bson:"objection_handling_resolution" validate:"min=0,max=10"`
	Negotiation                    int `json:"negotiation" bson:"negotiation" validate:"min=0,max=10"`
	UrgencyCreation                int `json:"urgency_creation" bson:"urgency_creation" validate:"min=0,max=10"`
	OnlinePaymentPitching          int `json:"online_payment_pitching" bson:"online_payment_pitching" validate:"min=0,max=10"`
	ActiveListening                int `json:"active_listening" bson:"active_listening" validate:"min=0,max=10"`
	ClaritySpeechRate              int `json:"clarity_speech_rate" bson:"clarity_speech_rate" validate:"min=0,max=10"`
	ToneVoiceModulation            int `json:"tone_voice_modulation" bson:"tone_voice_modulation" validate:"min=0,max=10"`
	Empathy                        int `json:"empathy" bson:"empathy" validate:"min=0,max=10"`
	Confidence                     int `json:"confidence" bson:"confidence" validate:"min=0,max=10"`
	LanguageGrammar                int `json:"language_grammar" bson:"language_grammar" validate:"min=0,max=10"`
	TelephoneEtiquettes            int `json:"telephone_etiquettes" bson:"telephone_etiquettes" validate:"min=0,max=10"`
	Summarization                  int `json:"summarization" bson:"summarization" validate:"min=0,max=10"`
	Closing                        int `json:"closing" bson:"closing" validate:"min=0,max=10"`
}

// --------------------------------------------
// Bucket rubric report (x/y buckets)
// --------------------------------------------
type BucketReport struct {
	CallSummary             string           `json:"call_summary" bson:"call_summary" validate:"required"`
	CallPurpose             string           `json:"call_purpose" bson:"call_purpose" validate:"required"`
	SentimentOverall        string           `json:"sentiment_overall" bson:"sentiment_overall" validate:"oneof=positive neutral negative"`
	SentimentBySpeaker      SpeakerSentiment `json:"sentiment_by_speaker" bson:"sentiment_by_speaker"`
	PaymentDiscussed        bool             `json:"payment_discussed" bson:"payment_discussed"`
	PaymentAmount           *string          `json:"payment_amount" bson:"payment_amount"`
	PaymentOptionsDiscussed []string         `json:"payment_options_discussed" bson:"payment_options_discussed" validate:"required"`
	FollowUpRequired        bool             `json:"follow_up_required" bson:"follow_up_required"`
	FollowUpDetails         *string          `json:"follow_up_details" bson:"follow_up_details"`
	AgentPerformance        string           `json:"agent_performance" bson:"agent_performance" validate:"required"`
	UnresolvedIssues        []string         `json:"unresolved_issues" bson:"unresolved_issues" validate:"required"`
	Summary                 string           `json:"summary" bson:"summary" validate:"required"`
	TotalScore              float64          `json:"total_score" bson:"total_score" validate:"min=0,max=10"`
	IndividualScores        BucketScores     `json:"individual_scores" bson:"individual_scores"`
	Positives               []string         `json:"positives" bson:"positives" validate:"required"`
	Improvements            []string         `json:"improvements" bson:"improvements" validate:"required"`
	MarkedTranscript        string           `json:"marked_transcript" bson:"marked_transcript"`
}

type SpeakerSentiment struct {
	AgentSentiment    string `json:"agent_sentiment" bson:"agent_sentiment" validate:"oneof=positive neutral negative"`
	CustomerSentiment string `json:"customer_sentiment" bson:"customer_sentiment" validate:"oneof=positive neutral negative"`
}

// BucketScores are the six weighted sub-scores, each 0–10.
type BucketScores struct {
	GreetingOpening       int `json:"greeting_opening" bson:"greeting_opening" validate:"min=0,max=10"`
	ObjectionHandling     int `json:"objection_handling" bson:"objection_handling" validate:"min=0,max=10"`
	UrgencyCreation                int `json:"urgency_creation" bson:"urgency_creation" validate:"min=0,max=10"`
	PaymentProcessClarity int `json:"payment_process_clarity" bson:"payment_process_clarity" validate:"min=0,max=10"`
	EmpathyTonality       int `json:"empathy_tonality" bson:"empathy_tonality" validate:"min=0,max=10"`
	CallManagementClosing int `json:"call_management_closing" bson:"call_management_closing" validate:"min=0,max=10"`
}
