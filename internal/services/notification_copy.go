package services

import "golang.org/x/text/language"

// notificationLocales lists the locales we ship copy for; the first entry is
// the fallback when matching fails.
var notificationLocales = []language.Tag{
	language.English,
	language.Indonesian,
}

var notificationMatcher = language.NewMatcher(notificationLocales)

type notificationTemplate struct {
	title string
	body  string
}

var notificationCopy = map[string]map[language.Tag]notificationTemplate{
	customizationEventCreated: {
		language.English:    {"New customization request", "A customer submitted a customization request and it is waiting for a designer."},
		language.Indonesian: {"Permintaan kustomisasi baru", "Seorang pelanggan mengirim permintaan kustomisasi dan sedang menunggu desainer."},
	},
	customizationEventClaimed: {
		language.English:    {"Designer assigned", "A designer picked up your customization request and started working on it."},
		language.Indonesian: {"Desainer ditugaskan", "Seorang desainer mengambil permintaan kustomisasi Anda dan mulai mengerjakannya."},
	},
	customizationEventShopSelected: {
		language.English:    {"Printing shop selected", "A printing shop was selected for the customization request."},
		language.Indonesian: {"Percetakan dipilih", "Percetakan telah dipilih untuk permintaan kustomisasi."},
	},
	customizationEventFinalSubmitted: {
		language.English:    {"Final work submitted", "The designer submitted final work for your review."},
		language.Indonesian: {"Hasil akhir dikirim", "Desainer mengirimkan hasil akhir untuk Anda tinjau."},
	},
	customizationEventApproved: {
		language.English:    {"Design approved", "The customer approved the submitted design."},
		language.Indonesian: {"Desain disetujui", "Pelanggan menyetujui desain yang dikirimkan."},
	},
	customizationEventRejected: {
		language.English:    {"Changes requested", "The customer requested changes to the submitted design."},
		language.Indonesian: {"Perubahan diminta", "Pelanggan meminta perubahan pada desain yang dikirimkan."},
	},
	customizationEventResubmitted: {
		language.English:    {"Design resubmitted", "The designer submitted a revised design for your review."},
		language.Indonesian: {"Desain dikirim ulang", "Desainer mengirimkan desain revisi untuk Anda tinjau."},
	},
	customizationEventCompleted: {
		language.English:    {"Customization completed", "An order was created from the approved design."},
		language.Indonesian: {"Kustomisasi selesai", "Pesanan telah dibuat dari desain yang disetujui."},
	},
	customizationEventCancelled: {
		language.English:    {"Customization cancelled", "The customization request was cancelled."},
		language.Indonesian: {"Kustomisasi dibatalkan", "Permintaan kustomisasi telah dibatalkan."},
	},
	disputeEventFiled: {
		language.English:    {"Dispute filed", "A dispute was filed against your transaction. Please respond within the negotiation window."},
		language.Indonesian: {"Sengketa diajukan", "Sengketa telah diajukan terhadap transaksi Anda. Mohon tanggapi dalam masa negosiasi."},
	},
	disputeEventNegotiationStarted: {
		language.English:    {"Negotiation started", "Negotiation has started on the dispute."},
		language.Indonesian: {"Negosiasi dimulai", "Negosiasi sengketa telah dimulai."},
	},
	disputeEventResolved: {
		language.English:    {"Dispute resolved", "The parties reached a resolution on the dispute."},
		language.Indonesian: {"Sengketa terselesaikan", "Para pihak mencapai penyelesaian atas sengketa."},
	},
	disputeEventEscalated: {
		language.English:    {"Dispute escalated", "The dispute was escalated to platform staff for review."},
		language.Indonesian: {"Sengketa dieskalasi", "Sengketa telah dieskalasi ke staf platform untuk ditinjau."},
	},
	disputeEventClosed: {
		language.English:    {"Dispute closed", "The dispute has been closed."},
		language.Indonesian: {"Sengketa ditutup", "Sengketa telah ditutup."},
	},
}

var fallbackNotificationCopy = map[language.Tag]notificationTemplate{
	language.English:    {"Workflow update", "There is an update on an item you are involved in."},
	language.Indonesian: {"Pembaruan alur kerja", "Ada pembaruan pada item yang melibatkan Anda."},
}

func notificationTemplateFor(eventType string, locale language.Tag) notificationTemplate {
	if byLocale, ok := notificationCopy[eventType]; ok {
		if template, ok := byLocale[locale]; ok {
			return template
		}
		return byLocale[notificationLocales[0]]
	}
	if template, ok := fallbackNotificationCopy[locale]; ok {
		return template
	}
	return fallbackNotificationCopy[notificationLocales[0]]
}

// matchNotificationLocale maps an arbitrary BCP 47 tag onto a supported locale.
func matchNotificationLocale(preferred string) language.Tag {
	if preferred == "" {
		return notificationLocales[0]
	}
	tag, err := language.Parse(preferred)
	if err != nil {
		return notificationLocales[0]
	}
	_, index, _ := notificationMatcher.Match(tag)
	return notificationLocales[index]
}
