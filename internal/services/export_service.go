package services

import (
	"encoding/xml"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"

	"github.com/clearledger/backend/internal/models"
)

// SettlementExportService converts the matched payments of an approved
// session into ISO 20022 pacs.008 credit-transfer messages for the
// settlement system. Approval is final, so export only sees settled data.
type SettlementExportService struct {
	institutionBIC string
}

func NewSettlementExportService(institutionBIC string) *SettlementExportService {
	if institutionBIC == "" {
		institutionBIC = "CLRLEDGR"
	}
	return &SettlementExportService{institutionBIC: institutionBIC}
}

// BuildPacs008 creates a pacs.008 FIToFICustomerCreditTransfer message
// for one reconciled payment.
func (e *SettlementExportService) BuildPacs008(session *models.ReconciliationSession, payment *models.Payment) (*pacs_v08.FIToFICustomerCreditTransferV08, error) {
	if session.Status != models.SessionApproved {
		return nil, fmt.Errorf("session %d is %s: %w", session.ID, session.Status, ErrInvalidState)
	}

	msgId := uuid.New().String()
	creDtTm := time.Now()
	settlementDate := time.Now()
	sessionRef := fmt.Sprintf("RECON-%d", session.ID)

	// ISO amounts are major units.
	amount := float64(payment.Amount) / 100

	doc := &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:   common.Max35Text(msgId),
			CreDtTm: common.ISODateTime(creDtTm),
			NbOfTxs: "1",
			TtlIntrBkSttlmAmt: &pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   common.ActiveCurrencyCode(payment.Currency),
				Value: amount,
			},
			IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "CLRG",
			},
		},
		CdtTrfTxInf: []pacs_v08.CreditTransferTransaction39{
			{
				PmtId: pacs_v08.PaymentIdentification7{
					InstrId:    &[]common.Max35Text{common.Max35Text(payment.PaymentID)}[0],
					EndToEndId: common.Max35Text(sessionRef),
					TxId:       &[]common.Max35Text{common.Max35Text(payment.PaymentID)}[0],
				},
				IntrBkSttlmAmt: pacs_v08.ActiveCurrencyAndAmount{
					Ccy:   common.ActiveCurrencyCode(payment.Currency),
					Value: amount,
				},
				IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
				ChrgBr:        "SLEV",
				DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier(e.institutionBIC)}[0],
					},
				},
				Dbtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(session.BankAccountID)}[0],
				},
				CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						ClrSysMmbId: &pacs_v08.ClearingSystemMemberIdentification2{
							MmbId: common.Max35Text(payment.BankAccountID),
						},
					},
				},
				Cdtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(payment.PaymentID)}[0],
				},
			},
		},
	}

	return doc, nil
}

// ConvertToXML renders an ISO 20022 document as an XML string.
func (e *SettlementExportService) ConvertToXML(doc interface{}) (string, error) {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal XML: %w", err)
	}
	return xml.Header + string(xmlData), nil
}

// SendToSettlement hands a document to the settlement channel.
func (e *SettlementExportService) SendToSettlement(doc interface{}) error {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal XML: %w", err)
	}

	// TODO: replace with the SFTP drop once the settlement endpoint is
	// provisioned.
	log.Printf("[EXPORT] Sending to settlement: %d bytes", len(xmlData))
	return nil
}
